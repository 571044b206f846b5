// Package lifecycle delivers the teardown notification a cache flushes on.
//
// In a browser this is the page-unload event; in a Go host it is whatever
// ends the owner's life: a signal, a cancelled context, or an explicit call.
// Callbacks run at most once, in registration order, with no return value.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Hook is the host side of the teardown contract.
type Hook interface {
	// OnTeardown registers fn to run once when the host tears down.
	// Registering after teardown runs fn immediately.
	OnTeardown(fn func())
}

// Manual fires when the host calls Fire. The zero value is ready to use.
type Manual struct {
	mu    sync.Mutex
	fns   []func()
	fired bool
}

var _ Hook = (*Manual)(nil)

func (m *Manual) OnTeardown(fn func()) {
	m.mu.Lock()
	if m.fired {
		m.mu.Unlock()
		fn()
		return
	}
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
}

// Fire runs the registered callbacks. Only the first call has an effect.
func (m *Manual) Fire() {
	m.mu.Lock()
	if m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Fired reports whether Fire has run.
func (m *Manual) Fired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Signals fires on the first of: one of the watched OS signals, or ctx done.
type Signals struct {
	Manual
	cancel  context.CancelFunc
	stopped chan struct{}
	done    chan struct{}
	once    sync.Once
}

var _ Hook = (*Signals)(nil)

// DefaultSignals are the process analogue of a page unload.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// NewSignals starts watching sigs (DefaultSignals if empty). Call Stop to
// release the signal handler; Stop does not fire the callbacks.
func NewSignals(ctx context.Context, sigs ...os.Signal) *Signals {
	if len(sigs) == 0 {
		sigs = DefaultSignals
	}
	sctx, cancel := signal.NotifyContext(ctx, sigs...)
	s := &Signals{
		cancel:  cancel,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		select {
		case <-sctx.Done():
			s.Fire()
		case <-s.stopped:
		}
	}()
	return s
}

// Stop releases the signal handler and waits for the watcher to exit.
func (s *Signals) Stop() {
	s.once.Do(func() { close(s.stopped) })
	<-s.done
	s.cancel()
}

// Done is closed once the watcher has exited, after callbacks have run.
func (s *Signals) Done() <-chan struct{} { return s.done }

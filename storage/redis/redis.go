package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/lscache/storage"
)

var ErrNilClient = errors.New("redis storage: nil client")

// Redis keeps slots as plain string keys, so several hosts can share one
// snapshot. Like every slot store it is last-writer-wins.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	ttl         time.Duration
	closeClient bool
}

var _ storage.Storage = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string        // prepended to slot names, e.g. "app:prod:"
	TTL         time.Duration // expiry of a snapshot after its last write; 0 = none
	CloseClient bool          // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) key(slot string) string { return p.prefix + slot }

func (p *Redis) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(slot)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, mapErr(err) // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, slot string, value []byte) error {
	ttl := p.ttl
	if ttl < 0 {
		ttl = 0
	}
	return mapErr(p.rdb.Set(ctx, p.key(slot), value, ttl).Err())
}

func (p *Redis) Del(ctx context.Context, slot string) error {
	return mapErr(p.rdb.Del(ctx, p.key(slot)).Err())
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.ErrClosed):
		return fmt.Errorf("%w: %v", storage.ErrClosed, err)
	case strings.HasPrefix(err.Error(), "OOM "):
		// maxmemory reached with a noeviction policy
		return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
	default:
		return err
	}
}

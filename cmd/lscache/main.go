package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/lscache"
	"github.com/unkn0wn-root/lscache/codec"
	"github.com/unkn0wn-root/lscache/config"
	"github.com/unkn0wn-root/lscache/lifecycle"
	lzap "github.com/unkn0wn-root/lscache/log/zap"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "lscache: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func printUsage(w io.Writer) {
	fmt.Fprint(w, `lscache: inspect and edit a persisted cache slot

usage:
  lscache [-config file.yaml] [-slot name] [-v] <command> [args]

commands:
  keys              list keys in insertion order
  get <key>         print the value stored under key
  set <key> <value> store value under key
  del <key>         remove key
  stat              show restore status and slot size
  clear             delete the slot from storage

Storage is selected with LSCACHE_* environment variables or the config file.
`)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lscache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "YAML config file")
	slot := fs.String("slot", "", "override the configured slot")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 1 {
		return errUsage
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *slot != "" {
		cfg.Slot = *slot
	}
	// a CLI edit is one short-lived owner; flush only at the end
	cfg.FlushDebounce, cfg.FlushInterval = 0, 0

	logger, err := newLogger(stderr, *verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := config.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "clear" {
		defer store.Close(ctx)
		if err := store.Del(ctx, cfg.Slot); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "cleared %s\n", cfg.Slot)
		return nil
	}

	opts := config.Options[[]byte](cfg, store, codec.Bytes{})
	opts.Logger = lzap.ZapLogger{L: logger}
	opts.CloseStorage = true
	// only an edit may be flushed; an interrupted read leaves the slot alone
	if mutates(cmd) {
		sig := lifecycle.NewSignals(ctx)
		defer sig.Stop()
		opts.Lifecycle = sig
	}
	cache, err := lscache.New[[]byte](opts)
	if err != nil {
		_ = store.Close(ctx)
		return err
	}

	changed, cmdErr := dispatch(cache, cmd, rest, stdout)
	if !changed {
		cache.Discard()
	}
	if err := cache.Close(ctx); err != nil {
		logger.Warn("close storage", zap.Error(err))
	}
	if cmdErr != nil {
		return cmdErr
	}
	if lf := cache.LastFlush(); lf.Err != nil {
		return lf.Err
	}
	return nil
}

func mutates(cmd string) bool { return cmd == "set" || cmd == "del" }

// dispatch runs one command and reports whether it changed the map.
func dispatch(cache lscache.Cache[[]byte], cmd string, args []string, stdout io.Writer) (bool, error) {
	switch cmd {
	case "keys":
		for _, k := range cache.Keys() {
			fmt.Fprintln(stdout, k)
		}
	case "get":
		if len(args) != 1 {
			return false, errUsage
		}
		v, ok := cache.Get(args[0])
		if !ok {
			return false, fmt.Errorf("key %q not found", args[0])
		}
		fmt.Fprintf(stdout, "%s\n", v)
	case "set":
		if len(args) != 2 {
			return false, errUsage
		}
		cache.Set(args[0], []byte(args[1]))
		return true, nil
	case "del":
		if len(args) != 1 {
			return false, errUsage
		}
		if _, ok := cache.Get(args[0]); !ok {
			return false, fmt.Errorf("key %q not found", args[0])
		}
		cache.Delete(args[0])
		return true, nil
	case "stat":
		lr := cache.LoadResult()
		fmt.Fprintf(stdout, "status:  %s\n", lr.Status)
		fmt.Fprintf(stdout, "entries: %d\n", lr.Entries)
		if len(lr.Dropped) > 0 {
			fmt.Fprintf(stdout, "dropped: %d\n", len(lr.Dropped))
		}
		if lr.Err != nil {
			fmt.Fprintf(stdout, "error:   %v\n", lr.Err)
		}
	default:
		return false, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return false, nil
}

func newLogger(w io.Writer, verbose bool) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core).Named("lscache"), nil
}

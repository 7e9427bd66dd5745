package parleycli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parley-dev/parley/chatsubmitservice"
	"github.com/parley-dev/parley/gatewayclient"
	"github.com/parley-dev/parley/historycache"
	"github.com/parley-dev/parley/libbus"
	"github.com/parley-dev/parley/libdbexec"
	"github.com/parley-dev/parley/libdispatch"
	"github.com/parley-dev/parley/libkvstore"
	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessionregistry"
	"github.com/parley-dev/parley/sessionstore"
	"github.com/parley-dev/parley/syncservice"
)

// Engine is the assembled client stack behind every subcommand.
type Engine struct {
	Registry   sessionregistry.Service
	Cache      historycache.Service
	Submit     chatsubmitservice.Service
	Sync       syncservice.Service
	Dispatcher *libdispatch.Dispatcher
	Bus        libbus.Messenger
	Store      sessionstore.Store
	AccountID  string
	Model      string
	Timeout    time.Duration
	Stop       func()
}

// BuildEngine wires the bus, the state database, the stores, and the
// sync/submit services from resolved options.
func BuildEngine(ctx context.Context, opts runOpts) (*Engine, error) {
	var tracker libtracker.ActivityTracker = libtracker.NoopTracker{}
	if opts.EffectiveTracing {
		tracker = libtracker.NewLogActivityTracker(slog.Default())
	}

	bus, err := libbus.NewPubSub(ctx, &libbus.Config{
		NATSURL:      opts.EffectiveNATSURL,
		NATSUser:     opts.EffectiveNATSUser,
		NATSPassword: opts.EffectiveNATSPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect bus: %w", err)
	}

	var closers []func()
	stop := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = bus.Close()
	}
	fail := func(err error) (*Engine, error) {
		stop()
		return nil, err
	}

	var db libdbexec.DBManager
	if opts.EffectivePostgresDSN != "" {
		db, err = libdbexec.NewPostgresDBManager(ctx, opts.EffectivePostgresDSN, sessionstore.Schema)
	} else {
		dbPathAbs, pathErr := filepath.Abs(opts.EffectiveDB)
		if pathErr != nil {
			return fail(fmt.Errorf("invalid database path: %w", pathErr))
		}
		if mkErr := os.MkdirAll(filepath.Dir(dbPathAbs), 0755); mkErr != nil {
			return fail(fmt.Errorf("cannot create database directory: %w", mkErr))
		}
		db, err = libdbexec.NewSQLiteDBManager(ctx, dbPathAbs, sessionstore.SchemaSQLite)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to open database: %w", err))
	}
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	})

	store := sessionstore.New(db.WithoutTransaction())
	keystore := sessionstore.NewActiveKeyStore(store)

	registry := sessionregistry.WithActivityTracker(sessionregistry.New(ctx, keystore), tracker)
	cache := historycache.WithActivityTracker(historycache.New(), tracker)
	dispatcher := libdispatch.New()
	caller := gatewayclient.New(bus)

	var snapshots syncservice.SnapshotStore
	if opts.EffectiveKVAddr != "" {
		kvManager, kvErr := libkvstore.NewManager(libkvstore.Config{
			KVAddr:     opts.EffectiveKVAddr,
			KVPassword: opts.EffectiveKVPassword,
		}, 0)
		if kvErr != nil {
			return fail(fmt.Errorf("failed to connect kv store: %w", kvErr))
		}
		closers = append(closers, func() { _ = kvManager.Close() })
		kv, kvErr := kvManager.Executor(ctx)
		if kvErr != nil {
			return fail(fmt.Errorf("failed to open kv executor: %w", kvErr))
		}
		snapshots = syncservice.NewKVSnapshotStore(kv)
	} else {
		snapshots = syncservice.NewDBSnapshotStore(store, opts.EffectiveAccountID)
	}

	sync := syncservice.New(registry, cache, caller, dispatcher, bus, snapshots, tracker, syncservice.Config{
		ResyncInterval:   opts.EffectiveResyncInterval,
		SnapshotInterval: opts.EffectiveSnapshotInterval,
	})
	submit := chatsubmitservice.WithActivityTracker(
		chatsubmitservice.New(registry, cache, caller, dispatcher), tracker)

	return &Engine{
		Registry:   registry,
		Cache:      cache,
		Submit:     submit,
		Sync:       sync,
		Dispatcher: dispatcher,
		Bus:        bus,
		Store:      store,
		AccountID:  opts.EffectiveAccountID,
		Model:      opts.EffectiveModel,
		Timeout:    opts.EffectiveTimeout,
		Stop:       stop,
	}, nil
}

// startEngine builds the engine and runs the initial synchronization.
func startEngine(ctx context.Context, opts runOpts) (*Engine, error) {
	engine, err := BuildEngine(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := engine.Sync.Start(ctx); err != nil {
		engine.Stop()
		return nil, fmt.Errorf("initial sync failed: %w", err)
	}
	return engine, nil
}

// callContext derives the per-invocation context with request tracking
// and the call timeout applied.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = libtracker.WithNewRequestID(ctx)
	if e.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.Timeout)
}

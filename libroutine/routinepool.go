package libroutine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// LoopConfig describes one supervised background loop.
type LoopConfig struct {
	Key          string
	Threshold    int
	ResetTimeout time.Duration
	Interval     time.Duration
	Operation    func(ctx context.Context) error
}

// Group supervises keyed background loops, one per key, each guarded by
// its own circuit breaker. Breaker parameters are fixed by the first
// StartLoop call for a key.
type Group struct {
	mu       sync.Mutex
	managers map[string]*Routine
	active   map[string]bool
	triggers map[string]chan struct{}
}

var (
	groupOnce sync.Once
	group     *Group
)

// GetGroup returns the process-wide loop group.
func GetGroup() *Group {
	groupOnce.Do(func() {
		group = &Group{
			managers: make(map[string]*Routine),
			active:   make(map[string]bool),
			triggers: make(map[string]chan struct{}),
		}
	})
	return group
}

// StartLoop starts the loop for cfg.Key unless one is already running.
// The loop stops and deregisters when ctx is cancelled.
func (g *Group) StartLoop(ctx context.Context, cfg *LoopConfig) {
	g.mu.Lock()
	if g.active[cfg.Key] {
		g.mu.Unlock()
		return
	}
	manager, ok := g.managers[cfg.Key]
	if !ok {
		manager = NewRoutine(cfg.Threshold, cfg.ResetTimeout)
		g.managers[cfg.Key] = manager
	}
	trigger, ok := g.triggers[cfg.Key]
	if !ok {
		trigger = make(chan struct{}, 1)
		g.triggers[cfg.Key] = trigger
	}
	g.active[cfg.Key] = true
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.active, cfg.Key)
			g.mu.Unlock()
		}()
		manager.Loop(ctx, cfg.Interval, trigger, cfg.Operation, func(err error) {
			if errors.Is(err, ErrCircuitOpen) {
				return
			}
			slog.DebugContext(ctx, "background loop cycle failed", "key", cfg.Key, "error", err)
		})
	}()
}

// IsLoopActive reports whether a loop is currently running for key.
func (g *Group) IsLoopActive(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[key]
}

// GetManager returns the breaker for key, or nil if none was created.
func (g *Group) GetManager(key string) *Routine {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.managers[key]
}

// ForceUpdate triggers an immediate cycle of the loop for key.
func (g *Group) ForceUpdate(key string) {
	g.mu.Lock()
	trigger := g.triggers[key]
	g.mu.Unlock()
	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

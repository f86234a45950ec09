// Package enginepool lazily constructs and caches the expensive engine
// instance backing each transcription mode.
package enginepool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stavrosk/sttcoord/internal/audit"
	"github.com/stavrosk/sttcoord/internal/engine"
)

// Lifecycle tracks the construction state of a pooled engine handle.
type Lifecycle string

const (
	LifecycleUnloaded Lifecycle = "unloaded"
	LifecycleLoading  Lifecycle = "loading"
	LifecycleReady    Lifecycle = "ready"
	LifecycleFailed   Lifecycle = "failed"
)

// ErrNotRegistered indicates no constructor exists for the requested mode.
var ErrNotRegistered = errors.New("no engine registered for mode")

type entry struct {
	state    Lifecycle
	instance engine.Engine
	lastErr  error
}

// Pool is the per-mode engine cache. Acquisition is serialized through one
// mutex, so concurrent requests for the same mode construct exactly once.
type Pool struct {
	registry engine.Registry
	configs  map[engine.ModeID]engine.Config
	emitter  audit.Emitter

	mu      sync.Mutex
	entries map[engine.ModeID]*entry
}

// New creates an empty pool over a constructor registry. Missing per-mode
// configs fall back to hotkeys-disabled defaults; longform always gets
// eager initialization.
func New(registry engine.Registry, configs map[engine.ModeID]engine.Config, emitter audit.Emitter) *Pool {
	if emitter == nil {
		emitter = audit.Noop()
	}
	merged := make(map[engine.ModeID]engine.Config, len(registry.Modes()))
	for _, mode := range registry.Modes() {
		cfg := configs[mode]
		cfg.DisableHotkeys = true
		if mode == engine.ModeLongform {
			cfg.EagerInit = true
		}
		merged[mode] = cfg
	}
	return &Pool{
		registry: registry,
		configs:  merged,
		emitter:  emitter,
		entries:  make(map[engine.ModeID]*entry),
	}
}

// Acquire returns the Ready engine for a mode, constructing it on first
// request. A previously Failed handle retries construction. Ready handles
// are never re-initialized.
func (p *Pool) Acquire(mode engine.ModeID) (engine.Engine, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[mode]
	if !ok {
		e = &entry{state: LifecycleUnloaded}
		p.entries[mode] = e
	}
	if e.state == LifecycleReady {
		return e.instance, nil
	}

	ctor, ok := p.registry.Constructor(mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, mode)
	}

	cfg := p.configs[mode]
	e.state = LifecycleLoading
	instance, err := ctor(cfg)
	if err == nil && instance == nil {
		err = fmt.Errorf("constructor for mode %q returned no engine", mode)
	}
	if err == nil && cfg.EagerInit {
		if lf, ok := instance.(engine.Longform); ok {
			err = lf.ForceInitialize()
		}
	}
	if err != nil {
		e.state = LifecycleFailed
		e.instance = nil
		e.lastErr = err
		p.emitter.Emit(audit.KindError, audit.SeverityError, "engine construction failed",
			map[string]string{"error": err.Error()}, audit.Correlation{Mode: string(mode)})
		return nil, fmt.Errorf("initialize %s engine: %w", mode, err)
	}

	e.state = LifecycleReady
	e.instance = instance
	e.lastErr = nil
	p.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "engine ready", nil,
		audit.Correlation{Mode: string(mode)})
	return instance, nil
}

// State reports the lifecycle of a mode's handle.
func (p *Pool) State(mode engine.ModeID) Lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[mode]; ok {
		return e.state
	}
	return LifecycleUnloaded
}

// ReleaseAll invokes CleanUp on every Ready engine. Failures are logged
// and never abort the remaining releases. Used only at shutdown.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, mode := range p.registry.Modes() {
		e, ok := p.entries[mode]
		if !ok || e.state != LifecycleReady {
			continue
		}
		if err := e.instance.CleanUp(); err != nil {
			p.emitter.Emit(audit.KindError, audit.SeverityWarn, "engine cleanup failed",
				map[string]string{"error": err.Error()}, audit.Correlation{Mode: string(mode)})
		}
		e.state = LifecycleUnloaded
		e.instance = nil
	}
}

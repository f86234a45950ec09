package enginepool

import (
	"errors"
	"sync"
	"testing"

	"github.com/stavrosk/sttcoord/internal/audit"
	"github.com/stavrosk/sttcoord/internal/engine"
)

type countingEngine struct {
	cleanups int
}

func (e *countingEngine) CleanUp() error {
	e.cleanups++
	return nil
}

type fakeLongform struct {
	countingEngine
	initialized int
}

func (e *fakeLongform) ForceInitialize() error { e.initialized++; return nil }
func (e *fakeLongform) StartRecording() error  { return nil }
func (e *fakeLongform) StopRecording() error   { return nil }

func mustRegistry(t *testing.T, ctors map[engine.ModeID]engine.Constructor) engine.Registry {
	t.Helper()
	reg, err := engine.NewRegistry(ctors)
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	return reg
}

func TestAcquireIsIdempotent(t *testing.T) {
	t.Parallel()

	constructed := 0
	reg := mustRegistry(t, map[engine.ModeID]engine.Constructor{
		engine.ModeRealtime: func(engine.Config) (engine.Engine, error) {
			constructed++
			return &countingEngine{}, nil
		},
	})
	pool := New(reg, nil, audit.Noop())

	first, err := pool.Acquire(engine.ModeRealtime)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	second, err := pool.Acquire(engine.ModeRealtime)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if first != second {
		t.Fatal("expected the same engine instance on repeat acquire")
	}
	if constructed != 1 {
		t.Fatalf("expected exactly one construction, got %d", constructed)
	}
	if state := pool.State(engine.ModeRealtime); state != LifecycleReady {
		t.Fatalf("expected ready state, got %s", state)
	}
}

func TestAcquireRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	reg := mustRegistry(t, map[engine.ModeID]engine.Constructor{
		engine.ModeStatic: func(engine.Config) (engine.Engine, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("model download failed")
			}
			return &countingEngine{}, nil
		},
	})
	pool := New(reg, nil, audit.Noop())

	if _, err := pool.Acquire(engine.ModeStatic); err == nil {
		t.Fatal("expected first acquire to fail")
	}
	if state := pool.State(engine.ModeStatic); state != LifecycleFailed {
		t.Fatalf("expected failed state, got %s", state)
	}

	if _, err := pool.Acquire(engine.ModeStatic); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected two construction attempts, got %d", attempts)
	}
}

func TestLongformEagerInitialization(t *testing.T) {
	t.Parallel()

	lf := &fakeLongform{}
	var seen engine.Config
	reg := mustRegistry(t, map[engine.ModeID]engine.Constructor{
		engine.ModeLongform: func(cfg engine.Config) (engine.Engine, error) {
			seen = cfg
			return lf, nil
		},
	})
	pool := New(reg, nil, audit.Noop())

	if _, err := pool.Acquire(engine.ModeLongform); err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if !seen.DisableHotkeys {
		t.Fatal("expected hotkeys disabled on construction")
	}
	if !seen.EagerInit {
		t.Fatal("expected eager init requested for longform")
	}
	if lf.initialized != 1 {
		t.Fatalf("expected exactly one ForceInitialize call, got %d", lf.initialized)
	}
}

func TestConcurrentAcquireConstructsOnce(t *testing.T) {
	t.Parallel()

	constructed := 0
	reg := mustRegistry(t, map[engine.ModeID]engine.Constructor{
		engine.ModeRealtime: func(engine.Config) (engine.Engine, error) {
			constructed++
			return &countingEngine{}, nil
		},
	})
	pool := New(reg, nil, audit.Noop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Acquire(engine.ModeRealtime); err != nil {
				t.Errorf("unexpected acquire error: %v", err)
			}
		}()
	}
	wg.Wait()

	if constructed != 1 {
		t.Fatalf("expected one construction under contention, got %d", constructed)
	}
}

func TestReleaseAllCleansUpReadyEngines(t *testing.T) {
	t.Parallel()

	rt := &countingEngine{}
	reg := mustRegistry(t, map[engine.ModeID]engine.Constructor{
		engine.ModeRealtime: func(engine.Config) (engine.Engine, error) { return rt, nil },
		engine.ModeStatic: func(engine.Config) (engine.Engine, error) {
			return nil, errors.New("never ready")
		},
	})
	sink := audit.NewMemorySink()
	pipeline := audit.NewPipeline(sink, audit.Config{})
	pool := New(reg, nil, pipeline)

	if _, err := pool.Acquire(engine.ModeRealtime); err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if _, err := pool.Acquire(engine.ModeStatic); err == nil {
		t.Fatal("expected static acquire to fail")
	}

	pool.ReleaseAll()
	if rt.cleanups != 1 {
		t.Fatalf("expected one cleanup, got %d", rt.cleanups)
	}
	if state := pool.State(engine.ModeRealtime); state != LifecycleUnloaded {
		t.Fatalf("expected unloaded after release, got %s", state)
	}
	if err := pipeline.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

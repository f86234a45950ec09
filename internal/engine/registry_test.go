package engine

import "testing"

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	ctor := func(Config) (Engine, error) { return nil, nil }

	if _, err := NewRegistry(map[ModeID]Constructor{"karaoke": ctor}); err == nil {
		t.Fatal("expected rejection of unknown mode id")
	}
	if _, err := NewRegistry(map[ModeID]Constructor{ModeRealtime: nil}); err == nil {
		t.Fatal("expected rejection of nil constructor")
	}
}

func TestRegistryDeterministicOrder(t *testing.T) {
	t.Parallel()

	ctor := func(Config) (Engine, error) { return nil, nil }
	reg, err := NewRegistry(map[ModeID]Constructor{
		ModeStatic:   ctor,
		ModeRealtime: ctor,
		ModeLongform: ctor,
	})
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}

	modes := reg.Modes()
	want := []ModeID{ModeLongform, ModeRealtime, ModeStatic}
	if len(modes) != len(want) {
		t.Fatalf("expected %d modes, got %d", len(want), len(modes))
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("expected mode %q at index %d, got %q", want[i], i, modes[i])
		}
	}

	if _, ok := reg.Constructor(ModeRealtime); !ok {
		t.Fatal("expected realtime constructor to be registered")
	}
	if _, ok := reg.Constructor("karaoke"); ok {
		t.Fatal("unexpected constructor for unknown mode")
	}
}

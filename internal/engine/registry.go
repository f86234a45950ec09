package engine

import (
	"errors"
	"fmt"
	"sort"
)

var errEmptyMode = errors.New("mode id is required")

func errUnknownMode(m ModeID) error {
	return fmt.Errorf("unsupported mode id: %q", m)
}

// Registry maps mode identifiers to engine constructors at compile time.
// Late-bound loading by module name is deliberately not supported.
type Registry struct {
	constructors map[ModeID]Constructor
	ordered      []ModeID
}

// NewRegistry builds a validated constructor registry.
func NewRegistry(constructors map[ModeID]Constructor) (Registry, error) {
	reg := Registry{constructors: make(map[ModeID]Constructor, len(constructors))}
	for mode, ctor := range constructors {
		if err := mode.Validate(); err != nil {
			return Registry{}, err
		}
		if ctor == nil {
			return Registry{}, fmt.Errorf("constructor for mode %q cannot be nil", mode)
		}
		reg.constructors[mode] = ctor
	}

	reg.ordered = make([]ModeID, 0, len(reg.constructors))
	for mode := range reg.constructors {
		reg.ordered = append(reg.ordered, mode)
	}
	sort.Slice(reg.ordered, func(i, j int) bool { return reg.ordered[i] < reg.ordered[j] })
	return reg, nil
}

// Constructor returns the constructor registered for a mode.
func (r Registry) Constructor(mode ModeID) (Constructor, bool) {
	ctor, ok := r.constructors[mode]
	return ctor, ok
}

// Modes returns registered mode ids in deterministic order.
func (r Registry) Modes() []ModeID {
	out := make([]ModeID, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Package extproc adapts external recognition-engine processes to the
// engine interfaces. Each mode maps to one invocation convention of the
// configured engine binary.
package extproc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/stavrosk/sttcoord/internal/engine"
)

// Definition names the engine binary and its base arguments.
type Definition struct {
	Command string
	Args    []string
}

var (
	errNoCommand      = errors.New("engine command not configured")
	errAlreadyStarted = errors.New("engine already started")
	errNotRecording   = errors.New("no recording in progress")
)

// stopGrace is how long a child gets to exit after SIGINT before SIGKILL.
const stopGrace = 1200 * time.Millisecond

// Constructors builds a registry constructor map from engine definitions.
// Modes without a definition are absent from the result.
func Constructors(defs map[engine.ModeID]Definition) map[engine.ModeID]engine.Constructor {
	ctors := make(map[engine.ModeID]engine.Constructor, len(defs))
	for mode, def := range defs {
		switch mode {
		case engine.ModeRealtime:
			ctors[mode] = func(cfg engine.Config) (engine.Engine, error) {
				return NewRealtime(def, cfg)
			}
		case engine.ModeLongform:
			ctors[mode] = func(cfg engine.Config) (engine.Engine, error) {
				return NewLongform(def, cfg)
			}
		case engine.ModeStatic:
			ctors[mode] = func(cfg engine.Config) (engine.Engine, error) {
				return NewStatic(def, cfg)
			}
		}
	}
	return ctors
}

// buildArgs appends construction-config flags to the definition's base
// arguments. Settings are sorted so invocations stay reproducible.
func buildArgs(def Definition, cfg engine.Config) []string {
	args := append([]string{}, def.Args...)
	if cfg.DisableHotkeys {
		args = append(args, "--no-hotkeys")
	}
	keys := make([]string, 0, len(cfg.Settings))
	for k := range cfg.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--set", k+"="+cfg.Settings[k])
	}
	return args
}

// terminate interrupts the child and escalates to SIGKILL after the
// grace period. The caller owns the Wait.
func terminate(proc *os.Process) {
	if proc == nil {
		return
	}
	_ = proc.Signal(os.Interrupt)
	go func(p *os.Process) {
		time.Sleep(stopGrace)
		_ = p.Kill()
	}(proc)
}

func runToCompletion(command string, args []string) error {
	cmd := exec.Command(command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", command, err, trimOutput(out))
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

func trimOutput(out []byte) string {
	const limit = 512
	if len(out) > limit {
		out = out[:limit]
	}
	return string(bytes.TrimSpace(out))
}

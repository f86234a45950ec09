package extproc

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stavrosk/sttcoord/internal/engine"
)

// StaticEngine transcribes a pre-recorded file. The engine binary opens
// its own file picker and exits when transcription completes or the user
// cancels, so completion is observed by watching the process.
type StaticEngine struct {
	command string
	args    []string

	transcribing atomic.Bool

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewStatic builds the file-transcription adapter.
func NewStatic(def Definition, cfg engine.Config) (*StaticEngine, error) {
	if strings.TrimSpace(def.Command) == "" {
		return nil, errNoCommand
	}
	return &StaticEngine{
		command: def.Command,
		args:    append(buildArgs(def, cfg), "--transcribe-file"),
	}, nil
}

// SelectFile launches the engine's picker-and-transcribe invocation.
// Transcribing reports true until the invocation finishes.
func (e *StaticEngine) SelectFile() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil {
		return errAlreadyStarted
	}

	cmd := exec.Command(e.command, e.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine %s: %w", e.command, err)
	}
	e.cmd = cmd
	e.transcribing.Store(true)

	go func() {
		_ = cmd.Wait()
		e.transcribing.Store(false)
		e.mu.Lock()
		if e.cmd == cmd {
			e.cmd = nil
		}
		e.mu.Unlock()
	}()
	return nil
}

// Transcribing reports whether a transcription run is still in flight.
func (e *StaticEngine) Transcribing() bool {
	return e.transcribing.Load()
}

// CleanUp aborts any in-flight transcription.
func (e *StaticEngine) CleanUp() error {
	e.mu.Lock()
	cmd := e.cmd
	e.mu.Unlock()

	if cmd != nil {
		terminate(cmd.Process)
	}
	return nil
}

package extproc

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/stavrosk/sttcoord/internal/engine"
)

// LongformEngine captures an extended dictation span. The engine binary
// records while its stdin is open and transcribes once stdin closes, so
// StopRecording blocks for the length of the transcription.
type LongformEngine struct {
	command string
	args    []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewLongform builds the dictation adapter. Construction is cheap; the
// expensive model preload happens in ForceInitialize.
func NewLongform(def Definition, cfg engine.Config) (*LongformEngine, error) {
	if strings.TrimSpace(def.Command) == "" {
		return nil, errNoCommand
	}
	return &LongformEngine{
		command: def.Command,
		args:    buildArgs(def, cfg),
	}, nil
}

// ForceInitialize runs the engine's model preload invocation to
// completion.
func (e *LongformEngine) ForceInitialize() error {
	if err := runToCompletion(e.command, append(append([]string{}, e.args...), "--preload")); err != nil {
		return fmt.Errorf("preload longform engine: %w", err)
	}
	return nil
}

// StartRecording launches the engine in record mode.
func (e *LongformEngine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil {
		return errAlreadyStarted
	}

	cmd := exec.Command(e.command, append(append([]string{}, e.args...), "--record")...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine %s: %w", e.command, err)
	}
	e.cmd = cmd
	e.stdin = stdin
	return nil
}

// StopRecording closes the engine's stdin and waits for transcription to
// finish. The wait is unbounded; callers decide how long to tolerate it.
func (e *LongformEngine) StopRecording() error {
	e.mu.Lock()
	cmd := e.cmd
	stdin := e.stdin
	e.cmd = nil
	e.stdin = nil
	e.mu.Unlock()

	if cmd == nil {
		return errNotRecording
	}
	if err := stdin.Close(); err != nil {
		terminate(cmd.Process)
		_ = cmd.Wait()
		return fmt.Errorf("close engine stdin: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("engine %s transcription failed: %w", e.command, err)
	}
	return nil
}

// CleanUp aborts any in-flight recording.
func (e *LongformEngine) CleanUp() error {
	e.mu.Lock()
	cmd := e.cmd
	e.cmd = nil
	e.stdin = nil
	e.mu.Unlock()

	if cmd == nil {
		return nil
	}
	terminate(cmd.Process)
	_ = cmd.Wait()
	return nil
}

package extproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/stavrosk/sttcoord/internal/engine"
)

// RealtimeEngine streams transcription lines from the engine binary's
// stdout. Each stdout line is one recognized utterance.
type RealtimeEngine struct {
	command string
	args    []string

	mu            sync.Mutex
	handler       func(string)
	cmd           *exec.Cmd
	stopRequested bool
}

// NewRealtime builds the streaming adapter.
func NewRealtime(def Definition, cfg engine.Config) (*RealtimeEngine, error) {
	if strings.TrimSpace(def.Command) == "" {
		return nil, errNoCommand
	}
	return &RealtimeEngine{
		command: def.Command,
		args:    append(buildArgs(def, cfg), "--stream"),
	}, nil
}

// SetTextHandler registers the utterance callback. Must be called before
// Start; the handler runs on the engine's reader goroutine.
func (e *RealtimeEngine) SetTextHandler(handler func(text string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// Start launches the engine process and blocks relaying utterances until
// Stop is called, the context is canceled, or the process dies.
func (e *RealtimeEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cmd != nil {
		e.mu.Unlock()
		return errAlreadyStarted
	}
	if e.stopRequested {
		// A stop raced ahead of the start; consume it instead of
		// launching a process nobody is watching.
		e.stopRequested = false
		e.mu.Unlock()
		return nil
	}
	cmd := exec.Command(e.command, e.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start engine %s: %w", e.command, err)
	}
	e.cmd = cmd
	handler := e.handler
	e.mu.Unlock()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			terminate(cmd.Process)
		case <-watchDone:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if handler != nil {
			handler(scanner.Text())
		}
	}
	waitErr := cmd.Wait()

	e.mu.Lock()
	stopped := e.stopRequested
	e.cmd = nil
	e.stopRequested = false
	e.mu.Unlock()

	if stopped || ctx.Err() != nil {
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("engine %s exited: %w", e.command, waitErr)
	}
	return errors.New("engine stream ended unexpectedly")
}

// Stop asks the running engine process to exit; Start unblocks once the
// process is gone. When no process is running yet the request latches,
// so a Start racing the stop returns immediately.
func (e *RealtimeEngine) Stop() error {
	e.mu.Lock()
	e.stopRequested = true
	cmd := e.cmd
	e.mu.Unlock()

	if cmd != nil {
		terminate(cmd.Process)
	}
	return nil
}

// CleanUp kills any still-running engine process.
func (e *RealtimeEngine) CleanUp() error {
	return e.Stop()
}

// Package coordinator owns the single source of truth for which
// transcription mode, if any, is active, and arbitrates every start/stop
// request against that state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stavrosk/sttcoord/api/command"
	"github.com/stavrosk/sttcoord/internal/audit"
	"github.com/stavrosk/sttcoord/internal/engine"
)

var (
	// ErrBusy reports a start request while another mode is active. A
	// normal arbitration outcome, not a failure.
	ErrBusy = errors.New("another mode is active")
	// ErrNothingToStop reports a stop request with no matching active
	// mode. Also a normal outcome.
	ErrNothingToStop = errors.New("nothing to stop")
	// ErrEngineInit wraps engine construction failures; the requested
	// mode was not entered.
	ErrEngineInit = errors.New("engine initialization failed")
)

// EnginePool resolves the cached engine instance for a mode.
type EnginePool interface {
	Acquire(mode engine.ModeID) (engine.Engine, error)
}

// Notifier receives human-readable notices about completed transitions.
// Implementations must not assume they are called on the command path.
type Notifier interface {
	Announce(ctx context.Context, message string) error
}

// Config bounds the coordinator's waits.
type Config struct {
	// StopJoinTimeout bounds the wait for a signaled worker to exit.
	StopJoinTimeout time.Duration
	// StaticPollInterval is the completion poll cadence for static mode.
	StaticPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.StopJoinTimeout <= 0 {
		c.StopJoinTimeout = 2 * time.Second
	}
	if c.StaticPollInterval <= 0 {
		c.StaticPollInterval = 500 * time.Millisecond
	}
	return c
}

// Coordinator serializes all mode transitions through one mutex. Worker
// self-completion funnels through the same lock, so a completion racing a
// new command can never corrupt the current mode.
type Coordinator struct {
	ctx      context.Context
	pool     EnginePool
	emitter  audit.Emitter
	notifier Notifier
	onQuit   func()
	cfg      Config
	session  string

	mu        sync.Mutex
	current   engine.ModeID
	workerGen int
	rtDone    chan struct{}
	rt        engine.Realtime
	lf        engine.Longform
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithNotifier attaches a transition notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithSessionID sets the audit correlation session id.
func WithSessionID(id string) Option {
	return func(c *Coordinator) { c.session = id }
}

// New constructs a coordinator. ctx bounds every worker the coordinator
// spawns; onQuit is invoked when a QUIT command arrives and must trigger
// full shutdown without blocking.
func New(ctx context.Context, pool EnginePool, emitter audit.Emitter, onQuit func(), cfg Config, opts ...Option) (*Coordinator, error) {
	if pool == nil {
		return nil, fmt.Errorf("engine pool is required")
	}
	if emitter == nil {
		emitter = audit.Noop()
	}
	if onQuit == nil {
		onQuit = func() {}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Coordinator{
		ctx:     ctx,
		pool:    pool,
		emitter: emitter,
		onQuit:  onQuit,
		cfg:     cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode returns the currently active mode, or the empty ModeID when idle.
func (c *Coordinator) Mode() engine.ModeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Handle applies one command against the current state. Rejections are
// returned as ErrBusy/ErrNothingToStop; the caller only logs them, since
// the command protocol carries no replies.
func (c *Coordinator) Handle(cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	switch cmd {
	case command.ToggleRealtime:
		return c.toggleRealtime()
	case command.StartLongform:
		return c.startLongform()
	case command.StopLongform:
		return c.stopLongform()
	case command.RunStatic:
		return c.runStatic()
	case command.Quit:
		c.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "quit requested", nil, c.correlation("", cmd))
		c.onQuit()
		return nil
	}
	return fmt.Errorf("unsupported command: %q", cmd)
}

func (c *Coordinator) toggleRealtime() error {
	c.mu.Lock()
	if c.current != "" && c.current != engine.ModeRealtime {
		active := c.current
		c.mu.Unlock()
		return c.reject(command.ToggleRealtime, active, ErrBusy)
	}

	if c.current == engine.ModeRealtime {
		rt, done, gen := c.rt, c.rtDone, c.workerGen
		c.mu.Unlock()
		c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "stopping realtime transcription", nil,
			c.correlation(engine.ModeRealtime, command.ToggleRealtime))
		if err := rt.Stop(); err != nil {
			c.emitter.Emit(audit.KindError, audit.SeverityError, "realtime stop failed",
				map[string]string{"error": err.Error()}, c.correlation(engine.ModeRealtime, command.ToggleRealtime))
		}
		select {
		case <-done:
		case <-time.After(c.cfg.StopJoinTimeout):
			c.emitter.Emit(audit.KindError, audit.SeverityWarn, "realtime worker did not exit within bound", nil,
				c.correlation(engine.ModeRealtime, command.ToggleRealtime))
		}
		c.completeWorker(gen, engine.ModeRealtime, nil)
		c.notify("realtime transcription stopped")
		return nil
	}

	// Idle: enter realtime. Acquisition happens under the lock, so a
	// concurrent command cannot start a second construction.
	eng, err := c.pool.Acquire(engine.ModeRealtime)
	if err != nil {
		c.mu.Unlock()
		return c.initFailure(command.ToggleRealtime, engine.ModeRealtime, err)
	}
	rt, ok := eng.(engine.Realtime)
	if !ok {
		c.mu.Unlock()
		return c.initFailure(command.ToggleRealtime, engine.ModeRealtime,
			fmt.Errorf("engine does not implement realtime capability"))
	}

	c.workerGen++
	gen := c.workerGen
	done := make(chan struct{})
	c.rt = rt
	c.rtDone = done
	c.current = engine.ModeRealtime
	c.mu.Unlock()

	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "realtime transcription started", nil,
		c.correlation(engine.ModeRealtime, command.ToggleRealtime))
	go c.runRealtimeWorker(gen, rt, done)
	c.notify("realtime transcription started")
	return nil
}

func (c *Coordinator) runRealtimeWorker(gen int, rt engine.Realtime, done chan struct{}) {
	defer close(done)
	err := rt.Start(c.ctx)
	c.completeWorker(gen, engine.ModeRealtime, err)
}

func (c *Coordinator) startLongform() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != "" {
		return c.reject(command.StartLongform, c.current, ErrBusy)
	}

	eng, err := c.pool.Acquire(engine.ModeLongform)
	if err != nil {
		return c.initFailure(command.StartLongform, engine.ModeLongform, err)
	}
	lf, ok := eng.(engine.Longform)
	if !ok {
		return c.initFailure(command.StartLongform, engine.ModeLongform,
			fmt.Errorf("engine does not implement longform capability"))
	}
	if err := lf.StartRecording(); err != nil {
		c.emitter.Emit(audit.KindError, audit.SeverityError, "longform recording failed to start",
			map[string]string{"error": err.Error()}, c.correlation(engine.ModeLongform, command.StartLongform))
		return fmt.Errorf("start longform recording: %w", err)
	}

	c.workerGen++
	c.lf = lf
	c.current = engine.ModeLongform
	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "longform recording started", nil,
		c.correlation(engine.ModeLongform, command.StartLongform))
	c.notify("longform recording started")
	return nil
}

func (c *Coordinator) stopLongform() error {
	c.mu.Lock()
	if c.current != engine.ModeLongform {
		active := c.current
		c.mu.Unlock()
		return c.reject(command.StopLongform, active, ErrNothingToStop)
	}
	lf, gen := c.lf, c.workerGen
	c.mu.Unlock()

	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "stopping longform recording, transcribing", nil,
		c.correlation(engine.ModeLongform, command.StopLongform))
	// StopRecording blocks while the captured span is transcribed. The
	// lock is released for the duration so shutdown and arbitration stay
	// responsive; the mode stays longform, so concurrent starts are
	// still rejected as busy.
	err := lf.StopRecording()

	c.mu.Lock()
	if c.workerGen == gen && c.current == engine.ModeLongform {
		c.lf = nil
		c.current = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.emitter.Emit(audit.KindError, audit.SeverityError, "longform stop failed",
			map[string]string{"error": err.Error()}, c.correlation(engine.ModeLongform, command.StopLongform))
		return fmt.Errorf("stop longform recording: %w", err)
	}
	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "longform recording stopped", nil,
		c.correlation("", command.StopLongform))
	c.notify("longform recording stopped")
	return nil
}

func (c *Coordinator) runStatic() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != "" {
		return c.reject(command.RunStatic, c.current, ErrBusy)
	}

	eng, err := c.pool.Acquire(engine.ModeStatic)
	if err != nil {
		return c.initFailure(command.RunStatic, engine.ModeStatic, err)
	}
	st, ok := eng.(engine.Static)
	if !ok {
		return c.initFailure(command.RunStatic, engine.ModeStatic,
			fmt.Errorf("engine does not implement static capability"))
	}

	c.workerGen++
	gen := c.workerGen
	c.current = engine.ModeStatic
	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "static transcription started, opening file selection", nil,
		c.correlation(engine.ModeStatic, command.RunStatic))
	go c.runStaticWorker(gen, st)
	return nil
}

// runStaticWorker drives the static engine to completion. The engine
// exposes no completion signal, only a pollable flag, so the worker polls
// at a fixed short interval and then self-terminates the mode.
func (c *Coordinator) runStaticWorker(gen int, st engine.Static) {
	if err := st.SelectFile(); err != nil {
		c.completeWorker(gen, engine.ModeStatic, err)
		return
	}

	ticker := time.NewTicker(c.cfg.StaticPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			// Shutdown lets static transcription finish naturally; the
			// worker just stops watching.
			return
		case <-ticker.C:
			if !st.Transcribing() {
				c.completeWorker(gen, engine.ModeStatic, nil)
				c.notify("static transcription finished")
				return
			}
		}
	}
}

// completeWorker clears the active mode on behalf of a finished worker.
// The generation token makes the call idempotent and protects against a
// stale worker clobbering a newer activation.
func (c *Coordinator) completeWorker(gen int, mode engine.ModeID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workerGen != gen || c.current != mode {
		return
	}
	c.current = ""
	c.rt = nil
	c.rtDone = nil

	if err != nil {
		c.emitter.Emit(audit.KindError, audit.SeverityError, "mode worker failed",
			map[string]string{"error": err.Error()}, c.correlation(mode, ""))
		return
	}
	c.emitter.Emit(audit.KindTransition, audit.SeverityInfo, "mode finished", nil, c.correlation(mode, ""))
}

// StopActive stops whatever mode is running as part of shutdown. Realtime
// is stopped and joined with a bounded wait, longform recording is stopped
// and transcribed, static is left to finish naturally.
func (c *Coordinator) StopActive() {
	c.mu.Lock()
	switch c.current {
	case engine.ModeRealtime:
		rt, done, gen := c.rt, c.rtDone, c.workerGen
		c.mu.Unlock()
		if err := rt.Stop(); err != nil {
			c.emitter.Emit(audit.KindError, audit.SeverityError, "realtime stop failed during shutdown",
				map[string]string{"error": err.Error()}, c.correlation(engine.ModeRealtime, ""))
		}
		select {
		case <-done:
		case <-time.After(c.cfg.StopJoinTimeout):
		}
		c.completeWorker(gen, engine.ModeRealtime, nil)
	case engine.ModeLongform:
		lf := c.lf
		c.lf = nil
		c.current = ""
		c.mu.Unlock()
		if err := lf.StopRecording(); err != nil {
			c.emitter.Emit(audit.KindError, audit.SeverityError, "longform stop failed during shutdown",
				map[string]string{"error": err.Error()}, c.correlation(engine.ModeLongform, ""))
		}
	case engine.ModeStatic:
		c.mu.Unlock()
		c.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "letting static transcription finish", nil,
			c.correlation(engine.ModeStatic, ""))
	default:
		c.mu.Unlock()
	}
}

func (c *Coordinator) reject(cmd command.Command, active engine.ModeID, cause error) error {
	message := "nothing to stop"
	if errors.Is(cause, ErrBusy) {
		message = fmt.Sprintf("busy: %s mode is active", active)
	}
	c.emitter.Emit(audit.KindReject, audit.SeverityWarn, message, nil, c.correlation(active, cmd))
	return cause
}

func (c *Coordinator) initFailure(cmd command.Command, mode engine.ModeID, err error) error {
	c.emitter.Emit(audit.KindError, audit.SeverityError, "mode not entered",
		map[string]string{"error": err.Error()}, c.correlation(mode, cmd))
	return fmt.Errorf("%w: %v", ErrEngineInit, err)
}

func (c *Coordinator) notify(message string) {
	if c.notifier == nil {
		return
	}
	go func() {
		if err := c.notifier.Announce(c.ctx, message); err != nil {
			c.emitter.Emit(audit.KindError, audit.SeverityWarn, "transition notice failed",
				map[string]string{"error": err.Error()}, c.correlation("", ""))
		}
	}()
}

func (c *Coordinator) correlation(mode engine.ModeID, cmd command.Command) audit.Correlation {
	return audit.Correlation{SessionID: c.session, Mode: string(mode), Command: string(cmd)}
}

// Package app wires the coordinator, engine pool, command server, and
// companion supervisor together and owns the ordered shutdown sequence.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stavrosk/sttcoord/internal/announce"
	"github.com/stavrosk/sttcoord/internal/audit"
	"github.com/stavrosk/sttcoord/internal/commandserver"
	"github.com/stavrosk/sttcoord/internal/companion"
	"github.com/stavrosk/sttcoord/internal/config"
	"github.com/stavrosk/sttcoord/internal/coordinator"
	"github.com/stavrosk/sttcoord/internal/engine"
	"github.com/stavrosk/sttcoord/internal/engine/extproc"
	"github.com/stavrosk/sttcoord/internal/enginepool"
)

// App holds the pieces that exist independently of the run context.
type App struct {
	cfg      config.Config
	emitter  audit.Emitter
	session  string
	registry engine.Registry
	pool     *enginepool.Pool
	notifier coordinator.Notifier
}

// New builds the application from configuration, loading the engines
// definition file when one is configured.
func New(cfg config.Config, emitter audit.Emitter) (*App, error) {
	registry := engine.Registry{}
	if cfg.EnginesPath != "" {
		defs, err := config.LoadEngines(cfg.EnginesPath)
		if err != nil {
			return nil, err
		}
		procDefs := make(map[engine.ModeID]extproc.Definition, len(defs))
		settings := make(map[engine.ModeID]engine.Config, len(defs))
		for mode, def := range defs {
			procDefs[mode] = extproc.Definition{Command: def.Command, Args: def.Args}
			settings[mode] = engine.Config{Settings: def.Settings}
		}
		registry, err = engine.NewRegistry(extproc.Constructors(procDefs))
		if err != nil {
			return nil, err
		}
		return NewWithRegistry(cfg, emitter, registry, settings)
	}
	return NewWithRegistry(cfg, emitter, registry, nil)
}

// NewWithRegistry builds the application around a prepared engine
// registry. Tests use it to substitute fake engines.
func NewWithRegistry(cfg config.Config, emitter audit.Emitter, registry engine.Registry, settings map[engine.ModeID]engine.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = audit.Noop()
	}

	a := &App{
		cfg:      cfg,
		emitter:  emitter,
		session:  uuid.NewString(),
		registry: registry,
		pool:     enginepool.New(registry, settings, emitter),
	}
	if cfg.AnnounceEnabled {
		a.notifier = announce.New(announce.Config{PlayerCommand: cfg.AnnouncePlayerCommand})
	}
	return a, nil
}

// SessionID returns the audit correlation id for this process lifetime.
func (a *App) SessionID() string {
	return a.session
}

// Run brings the coordinator online and blocks until ctx is canceled or
// a QUIT command arrives, then executes the shutdown sequence: stop the
// active mode, terminate the companion, join the listener, release the
// engine pool.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []coordinator.Option{coordinator.WithSessionID(a.session)}
	if a.notifier != nil {
		opts = append(opts, coordinator.WithNotifier(a.notifier))
	}
	coord, err := coordinator.New(runCtx, a.pool, a.emitter, cancel, coordinator.Config{
		StopJoinTimeout:    a.cfg.StopJoinTimeout,
		StaticPollInterval: a.cfg.StaticPollInterval,
	}, opts...)
	if err != nil {
		return err
	}

	server, err := commandserver.New(commandserver.Config{Addr: a.cfg.ListenAddr}, coord, a.emitter, a.session)
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}

	supervisor := companion.New(companion.Config{
		Command:   a.cfg.CompanionCommand,
		Args:      a.cfg.CompanionArgs,
		MatchName: a.cfg.CompanionMatchName,
		MatchArg:  a.cfg.CompanionMatchArg,
	}, a.emitter, a.session)
	if err := supervisor.Launch(); err != nil {
		if errors.Is(err, companion.ErrNotConfigured) {
			a.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "companion disabled", nil,
				audit.Correlation{SessionID: a.session})
		} else {
			// Non-fatal: the coordinator keeps serving; commands can
			// still arrive over the command channel.
			a.emitter.Emit(audit.KindError, audit.SeverityError, "companion launch failed",
				map[string]string{"error": err.Error()}, audit.Correlation{SessionID: a.session})
		}
	}

	a.preloadLongform()

	a.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "coordinator ready",
		map[string]string{"addr": server.Addr().String()}, audit.Correlation{SessionID: a.session})

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(runCtx) }()

	<-runCtx.Done()

	coord.StopActive()
	supervisor.Terminate()

	_ = server.Close()
	var serveErr error
	select {
	case serveErr = <-serveDone:
	case <-time.After(a.cfg.StopJoinTimeout):
		a.emitter.Emit(audit.KindError, audit.SeverityWarn, "listener did not exit within bound", nil,
			audit.Correlation{SessionID: a.session})
	}

	a.pool.ReleaseAll()

	a.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "coordinator stopped", nil,
		audit.Correlation{SessionID: a.session})
	return serveErr
}

// preloadLongform warms the longform model at startup so the first
// dictation does not pay the initialization cost. Failure is reported
// and retried on first use.
func (a *App) preloadLongform() {
	if _, ok := a.registry.Constructor(engine.ModeLongform); !ok {
		return
	}
	if _, err := a.pool.Acquire(engine.ModeLongform); err != nil {
		a.emitter.Emit(audit.KindError, audit.SeverityWarn, "longform preload failed",
			map[string]string{"error": err.Error()}, audit.Correlation{SessionID: a.session, Mode: string(engine.ModeLongform)})
	}
}

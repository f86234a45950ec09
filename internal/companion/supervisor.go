// Package companion launches and supervises the external hotkey-listener
// process that turns key presses into commands on the command channel.
package companion

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/stavrosk/sttcoord/internal/audit"
)

// ErrNotConfigured indicates no companion command was configured.
var ErrNotConfigured = errors.New("no companion command configured")

// Config describes the companion process and how to recognize stale
// instances left over from a previous session.
type Config struct {
	// Command is the companion executable path. Empty disables launching.
	Command string
	// Args are passed to the companion verbatim.
	Args []string
	// MatchName is the process name stale instances report.
	MatchName string
	// MatchArg is a command-line substring that disambiguates our
	// companion from unrelated processes with the same name.
	MatchArg string
}

// Supervisor owns the companion's lifetime. It holds the started child's
// handle directly, so termination never depends on rediscovering the
// process by OS enumeration.
type Supervisor struct {
	cfg      Config
	emitter  audit.Emitter
	session  string
	procRoot string

	mu         sync.Mutex
	proc       *os.Process
	launchedAt time.Time
}

// New constructs a supervisor.
func New(cfg Config, emitter audit.Emitter, sessionID string) *Supervisor {
	if emitter == nil {
		emitter = audit.Noop()
	}
	return &Supervisor{cfg: cfg, emitter: emitter, session: sessionID, procRoot: "/proc"}
}

// Launch kills stale companions from previous sessions, then starts the
// configured companion detached in its own session.
func (s *Supervisor) Launch() error {
	if strings.TrimSpace(s.cfg.Command) == "" {
		return ErrNotConfigured
	}

	s.killStale()

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch companion %s: %w", s.cfg.Command, err)
	}

	s.mu.Lock()
	s.proc = cmd.Process
	s.launchedAt = time.Now()
	s.mu.Unlock()

	// Reap the child when it exits on its own.
	go func() { _ = cmd.Wait() }()

	s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "companion launched",
		map[string]string{"pid": fmt.Sprint(cmd.Process.Pid)}, audit.Correlation{SessionID: s.session})
	return nil
}

// Terminate force-kills the launched companion. A no-op when nothing was
// launched or launch never succeeded.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc == nil {
		s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "no companion to terminate", nil,
			audit.Correlation{SessionID: s.session})
		return
	}
	if err := proc.Kill(); err != nil {
		s.emitter.Emit(audit.KindError, audit.SeverityWarn, "companion kill failed",
			map[string]string{"error": err.Error()}, audit.Correlation{SessionID: s.session})
		return
	}
	s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "companion terminated",
		map[string]string{"pid": fmt.Sprint(proc.Pid)}, audit.Correlation{SessionID: s.session})
}

// PID reports the launched companion's pid, when known.
func (s *Supervisor) PID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0, false
	}
	return s.proc.Pid, true
}

func (s *Supervisor) killStale() {
	if s.cfg.MatchName == "" {
		return
	}
	procs, err := scanProcesses(s.procRoot)
	if err != nil {
		s.emitter.Emit(audit.KindError, audit.SeverityWarn, "stale companion scan failed",
			map[string]string{"error": err.Error()}, audit.Correlation{SessionID: s.session})
		return
	}
	self := os.Getpid()
	for _, p := range procs {
		if p.PID == self || !matches(p, s.cfg.MatchName, s.cfg.MatchArg) {
			continue
		}
		if err := syscall.Kill(p.PID, syscall.SIGKILL); err != nil {
			s.emitter.Emit(audit.KindError, audit.SeverityWarn, "stale companion kill failed",
				map[string]string{"pid": fmt.Sprint(p.PID), "error": err.Error()},
				audit.Correlation{SessionID: s.session})
			continue
		}
		s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "stale companion killed",
			map[string]string{"pid": fmt.Sprint(p.PID)}, audit.Correlation{SessionID: s.session})
	}
}

// matches requires both the process name and, when configured, a
// command-line substring. Name alone is not unique enough.
func matches(p processInfo, name, arg string) bool {
	if p.Name != name {
		return false
	}
	if arg == "" {
		return true
	}
	return strings.Contains(p.Cmdline, arg)
}

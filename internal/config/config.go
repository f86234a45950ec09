// Package config loads coordinator settings from the environment and the
// optional engines definition file.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full coordinator configuration. Values come from the
// environment; CLI flags may override individual fields afterwards.
type Config struct {
	// ListenAddr is the command channel bind address. Loopback only; the
	// protocol carries no authentication.
	ListenAddr string `env:"STTD_LISTEN_ADDR" envDefault:"127.0.0.1:35000"`

	// AuditLogPath receives one JSON line per audit event.
	AuditLogPath string `env:"STTD_AUDIT_LOG" envDefault:"sttd.log"`
	// AuditQueueCapacity bounds the in-memory audit queue.
	AuditQueueCapacity int `env:"STTD_AUDIT_QUEUE_CAPACITY" envDefault:"256"`

	// EnginesPath points at the engines definition file. Empty means no
	// engines are configured and every start command will fail to
	// acquire a resource.
	EnginesPath string `env:"STTD_ENGINES_CONFIG"`

	// CompanionCommand launches the hotkey listener. Empty disables it;
	// commands can still arrive from sttdctl.
	CompanionCommand string   `env:"STTD_COMPANION_CMD"`
	CompanionArgs    []string `env:"STTD_COMPANION_ARGS" envSeparator:" "`
	// CompanionMatchName and CompanionMatchArg identify stale companion
	// processes from a previous session.
	CompanionMatchName string `env:"STTD_COMPANION_MATCH_NAME" envDefault:"sttkeys"`
	CompanionMatchArg  string `env:"STTD_COMPANION_MATCH_ARG" envDefault:"sttkeys"`

	// StopJoinTimeout bounds worker joins during stop and shutdown.
	StopJoinTimeout time.Duration `env:"STTD_STOP_JOIN_TIMEOUT" envDefault:"2s"`
	// StaticPollInterval is the static-mode completion poll cadence.
	StaticPollInterval time.Duration `env:"STTD_STATIC_POLL_INTERVAL" envDefault:"500ms"`

	// AnnounceEnabled turns on spoken transition notices.
	AnnounceEnabled bool `env:"STTD_ANNOUNCE_ENABLED" envDefault:"false"`
	// AnnouncePlayerCommand pipes synthesized audio to this player.
	AnnouncePlayerCommand string `env:"STTD_ANNOUNCE_PLAYER" envDefault:"mpv"`
}

// FromEnv parses configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces invariants flags cannot relax.
func (c Config) Validate() error {
	host, _, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen addr %q: %w", c.ListenAddr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen addr %q must be loopback", c.ListenAddr)
	}
	if c.AuditQueueCapacity < 1 {
		return fmt.Errorf("audit queue capacity must be >=1")
	}
	if c.StopJoinTimeout <= 0 {
		return fmt.Errorf("stop join timeout must be positive")
	}
	if c.StaticPollInterval <= 0 {
		return fmt.Errorf("static poll interval must be positive")
	}
	return nil
}

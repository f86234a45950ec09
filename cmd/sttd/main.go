// Command sttd runs the speech-to-text session coordinator: it listens
// for commands on the loopback command channel, drives the transcription
// engines, and supervises the hotkey companion process.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/stavrosk/sttcoord/internal/app"
	"github.com/stavrosk/sttcoord/internal/audit"
	"github.com/stavrosk/sttcoord/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sttd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "sttd",
		Usage: "Speech-to-text session coordinator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Command channel address (loopback only)",
			},
			&cli.StringFlag{
				Name:    "engines",
				Aliases: []string{"e"},
				Usage:   "Path to the engines definition file",
			},
			&cli.StringFlag{
				Name:  "audit-log",
				Usage: "Path to the audit log file",
			},
			&cli.BoolFlag{
				Name:  "announce",
				Usage: "Speak mode transitions aloud",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cmd.IsSet("listen") {
		cfg.ListenAddr = cmd.String("listen")
	}
	if cmd.IsSet("engines") {
		cfg.EnginesPath = cmd.String("engines")
	}
	if cmd.IsSet("audit-log") {
		cfg.AuditLogPath = cmd.String("audit-log")
	}
	if cmd.IsSet("announce") {
		cfg.AnnounceEnabled = cmd.Bool("announce")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sink, err := audit.NewFileSink(cfg.AuditLogPath)
	if err != nil {
		return err
	}
	defer sink.Close()
	emitter := audit.NewPipeline(sink, audit.Config{QueueCapacity: cfg.AuditQueueCapacity})
	defer emitter.Close()

	a, err := app.New(cfg, emitter)
	if err != nil {
		return err
	}

	printBanner(os.Stdout, cfg)
	return a.Run(ctx)
}

func printBanner(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w, "sttd speech-to-text coordinator")
	fmt.Fprintf(w, "  command channel  %s\n", cfg.ListenAddr)
	fmt.Fprintln(w, "  commands         TOGGLE_REALTIME START_LONGFORM STOP_LONGFORM RUN_STATIC QUIT")
	if cfg.CompanionCommand != "" {
		fmt.Fprintf(w, "  companion        %s\n", cfg.CompanionCommand)
	}
	fmt.Fprintln(w, "send QUIT or press Ctrl-C to exit")
}

// Command sttdctl sends one command to a running sttd coordinator. The
// protocol is fire and forget; success only means the command was
// written, not that the coordinator accepted it.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/stavrosk/sttcoord/api/command"
)

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sttdctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:        "sttdctl",
		Usage:       "Send a command to a running sttd coordinator",
		ArgsUsage:   "COMMAND",
		Description: "Known commands: " + strings.Join(commandNames(), " "),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Coordinator command channel address",
				Value: "127.0.0.1:35000",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Dial and write timeout",
				Value: 2 * time.Second,
			},
		},
		Action: runSend,
	}
}

func runSend(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 1 {
		return fmt.Errorf("expected exactly one command, known commands: %s", strings.Join(commandNames(), " "))
	}
	parsed, err := command.Parse(args.First())
	if err != nil {
		return err
	}

	timeout := cmd.Duration("timeout")
	conn, err := net.DialTimeout("tcp", cmd.String("addr"), timeout)
	if err != nil {
		return fmt.Errorf("dial coordinator: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write([]byte(string(parsed) + "\n")); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func commandNames() []string {
	all := command.All()
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = string(c)
	}
	return names
}

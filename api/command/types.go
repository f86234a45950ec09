// Package command defines the wire vocabulary of the coordinator's
// local command channel and the mode identifiers the commands act on.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknown reports a tag outside the command vocabulary. Listeners log
// and drop such input; the channel never replies.
var ErrUnknown = errors.New("unknown command")

// Command is one tag from the closed command vocabulary. Commands are
// stateless and carry no payload beyond the tag itself.
type Command string

const (
	ToggleRealtime Command = "TOGGLE_REALTIME"
	StartLongform  Command = "START_LONGFORM"
	StopLongform   Command = "STOP_LONGFORM"
	RunStatic      Command = "RUN_STATIC"
	Quit           Command = "QUIT"
)

// Validate enforces supported command tags.
func (c Command) Validate() error {
	switch c {
	case ToggleRealtime, StartLongform, StopLongform, RunStatic, Quit:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknown, c)
	}
}

// All returns the full command vocabulary in protocol order.
func All() []Command {
	return []Command{ToggleRealtime, StartLongform, StopLongform, RunStatic, Quit}
}

// Parse decodes one raw line from the command channel. Surrounding
// whitespace is insignificant; anything else must match a tag exactly.
func Parse(raw string) (Command, error) {
	c := Command(strings.TrimSpace(raw))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

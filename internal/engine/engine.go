// Package engine defines the capability surface of the opaque recognition
// engines backing each transcription mode, plus the compile-time registry
// that maps a mode to its engine constructor.
package engine

import "context"

// ModeID identifies one of the mutually exclusive transcription modes.
type ModeID string

const (
	ModeRealtime ModeID = "realtime"
	ModeLongform ModeID = "longform"
	ModeStatic   ModeID = "static"
)

// Validate enforces supported mode identifiers.
func (m ModeID) Validate() error {
	switch m {
	case ModeRealtime, ModeLongform, ModeStatic:
		return nil
	case "":
		return errEmptyMode
	default:
		return errUnknownMode(m)
	}
}

// Modes returns all mode identifiers in declaration order.
func Modes() []ModeID {
	return []ModeID{ModeRealtime, ModeLongform, ModeStatic}
}

// Config carries construction settings shared by every engine constructor.
type Config struct {
	// DisableHotkeys suppresses the engine's own key bindings so they do
	// not conflict with the external hotkey listener.
	DisableHotkeys bool
	// EagerInit requests full model initialization at construction rather
	// than on first use. Only the longform engine honors it today.
	EagerInit bool
	// Settings carries engine-specific options from the engines config file.
	Settings map[string]string
}

// Engine is the minimum surface every recognition engine exposes.
type Engine interface {
	// CleanUp releases the engine's underlying resources. Called once at
	// process shutdown.
	CleanUp() error
}

// Realtime streams transcription results continuously. Start blocks until
// Stop is called from another goroutine or the context is canceled.
type Realtime interface {
	Engine
	SetTextHandler(handler func(text string))
	Start(ctx context.Context) error
	Stop() error
}

// Longform captures an extended dictation span. StopRecording blocks while
// the captured span is transcribed.
type Longform interface {
	Engine
	ForceInitialize() error
	StartRecording() error
	StopRecording() error
}

// Static transcribes a pre-recorded file chosen by the user. SelectFile
// initiates selection and transcription; Transcribing reports completion
// and is polled rather than signaled.
type Static interface {
	Engine
	SelectFile() error
	Transcribing() bool
}

// Constructor builds one engine instance for a mode.
type Constructor func(cfg Config) (Engine, error)

// Package announce speaks short mode-transition notices through Amazon
// Polly. The coordinator treats announcements as best effort; failures
// are reported but never block a transition.
package announce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Errors classifying announcement failures.
var (
	ErrThrottled   = errors.New("announce throttled")
	ErrBadRequest  = errors.New("announce rejected by service")
	ErrUnavailable = errors.New("announce service unavailable")
)

// Config tunes the announcer.
type Config struct {
	Region  string
	VoiceID string
	Engine  string
	// PlayerCommand receives synthesized audio on stdin. Empty discards
	// the audio, which keeps tests silent.
	PlayerCommand string
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-east-1"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Joanna"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "neural"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Announcer synthesizes notices and pipes them to the player command.
type Announcer struct {
	cfg  Config
	play func(ctx context.Context, audio io.Reader) error

	mu     sync.Mutex
	client synthClient
}

// New constructs an announcer that builds its Polly client lazily from
// the default AWS credential chain.
func New(cfg Config) *Announcer {
	return NewWithClient(cfg, nil)
}

// NewWithClient injects a synthesis client, used by tests.
func NewWithClient(cfg Config, client synthClient) *Announcer {
	a := &Announcer{cfg: cfg.withDefaults(), client: client}
	a.play = a.pipeToPlayer
	return a
}

// Announce synthesizes message and plays it. It returns one of the
// package error classes wrapped around the underlying cause.
func (a *Announcer) Announce(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &message,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(a.cfg.VoiceID),
	})
	if err != nil {
		return classify(err)
	}
	if output == nil || output.AudioStream == nil {
		return fmt.Errorf("%w: empty audio stream", ErrUnavailable)
	}
	defer output.AudioStream.Close()
	return a.play(ctx, output.AudioStream)
}

func (a *Announcer) pipeToPlayer(ctx context.Context, audio io.Reader) error {
	if strings.TrimSpace(a.cfg.PlayerCommand) == "" {
		_, err := io.Copy(io.Discard, audio)
		return err
	}
	cmd := exec.CommandContext(ctx, a.cfg.PlayerCommand, "-")
	cmd.Stdin = audio
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play announcement: %w", err)
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "InvalidSampleRateException":
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (a *Announcer) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}

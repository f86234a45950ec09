package announce

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/smithy-go"
)

type fakePollyClient struct {
	calls int
	text  string
	audio []byte
	err   error
}

func (f *fakePollyClient) SynthesizeSpeech(_ context.Context, params *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.calls++
	if params.Text != nil {
		f.text = *params.Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader(f.audio))}, nil
}

type fakeAPIError struct {
	code string
}

func (e fakeAPIError) Error() string        { return e.code }
func (e fakeAPIError) ErrorCode() string    { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultServer
}

var _ smithy.APIError = fakeAPIError{}

func TestAnnounceSynthesizesAndPlays(t *testing.T) {
	t.Parallel()

	client := &fakePollyClient{audio: []byte("mp3")}
	a := NewWithClient(Config{}, client)
	var played []byte
	a.play = func(_ context.Context, audio io.Reader) error {
		raw, err := io.ReadAll(audio)
		played = raw
		return err
	}

	if err := a.Announce(context.Background(), "realtime mode on"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected one synthesis call, got %d", client.calls)
	}
	if client.text != "realtime mode on" {
		t.Fatalf("unexpected text %q", client.text)
	}
	if string(played) != "mp3" {
		t.Fatalf("unexpected audio %q", played)
	}
}

func TestAnnounceEmptyMessageIsNoOp(t *testing.T) {
	t.Parallel()

	client := &fakePollyClient{audio: []byte("mp3")}
	a := NewWithClient(Config{}, client)
	if err := a.Announce(context.Background(), "  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("expected no synthesis calls, got %d", client.calls)
	}
}

func TestAnnounceClassifiesServiceErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "throttled", err: &fakeAPIError{code: "TooManyRequestsException"}, want: ErrThrottled},
		{name: "bad request", err: &fakeAPIError{code: "TextLengthExceededException"}, want: ErrBadRequest},
		{name: "server error", err: &fakeAPIError{code: "ServiceFailureException"}, want: ErrUnavailable},
		{name: "transport", err: errors.New("connection reset"), want: ErrUnavailable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := NewWithClient(Config{}, &fakePollyClient{err: tc.err})
			err := a.Announce(context.Background(), "notice")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAnnounceDiscardsAudioWithoutPlayer(t *testing.T) {
	t.Parallel()

	a := NewWithClient(Config{}, &fakePollyClient{audio: []byte("mp3")})
	if err := a.Announce(context.Background(), "longform recording started"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

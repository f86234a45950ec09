package commandserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stavrosk/sttcoord/api/command"
	"github.com/stavrosk/sttcoord/internal/audit"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (d *recordingDispatcher) Handle(cmd command.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	return nil
}

func (d *recordingDispatcher) commands() []command.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]command.Command, len(d.cmds))
	copy(out, d.cmds)
	return out
}

func startServer(t *testing.T, dispatcher Dispatcher, sink audit.Sink) (*Server, context.CancelFunc, chan struct{}) {
	t.Helper()

	emitter := audit.NewPipeline(sink, audit.Config{QueueCapacity: 64})
	t.Cleanup(func() { _ = emitter.Close() })

	srv, err := New(Config{Addr: "127.0.0.1:0", AcceptTimeout: 50 * time.Millisecond}, dispatcher, emitter, "test-session")
	if err != nil {
		t.Fatalf("unexpected server error: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("unexpected listen error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
		<-done
	})
	return srv, cancel, done
}

func send(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestServeDispatchesOneCommandPerConnection(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	srv, _, _ := startServer(t, dispatcher, audit.NewMemorySink())

	send(t, srv.Addr(), "TOGGLE_REALTIME\n")
	send(t, srv.Addr(), "  START_LONGFORM  ")
	send(t, srv.Addr(), "QUIT")

	waitFor(t, 2*time.Second, func() bool { return len(dispatcher.commands()) == 3 })
	got := dispatcher.commands()
	want := []command.Command{command.ToggleRealtime, command.StartLongform, command.Quit}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %q at index %d, got %q", want[i], i, got[i])
		}
	}
}

func TestServeDropsUnknownCommands(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	sink := audit.NewMemorySink()
	srv, _, _ := startServer(t, dispatcher, sink)

	send(t, srv.Addr(), "MAKE_COFFEE")
	send(t, srv.Addr(), "RUN_STATIC")

	waitFor(t, 2*time.Second, func() bool { return len(dispatcher.commands()) == 1 })
	if got := dispatcher.commands()[0]; got != command.RunStatic {
		t.Fatalf("expected RUN_STATIC, got %q", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, event := range sink.Events() {
			if event.Kind == audit.KindReject && event.Attributes["raw"] == "MAKE_COFFEE" {
				return true
			}
		}
		return false
	})
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	srv, cancel, done := startServer(t, dispatcher, audit.NewMemorySink())
	addr := srv.Addr()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not observe cancellation")
	}

	// The listener no longer accepts connections.
	conn, err := net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected dial to fail after shutdown")
	}
}

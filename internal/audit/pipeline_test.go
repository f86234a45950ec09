package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	inner   *MemorySink
}

func (s *blockingSink) Export(ctx context.Context, event Event) error {
	s.once.Do(func() { <-s.release })
	return s.inner.Export(ctx, event)
}

func TestPipelineExportsEvents(t *testing.T) {
	t.Parallel()

	sink := NewMemorySink()
	p := NewPipeline(sink, Config{QueueCapacity: 8})

	p.Emit(KindTransition, SeverityInfo, "realtime started", map[string]string{"from": "none"}, Correlation{SessionID: "s1", Mode: "realtime"})
	p.Emit(KindReject, SeverityWarn, "busy", nil, Correlation{SessionID: "s1", Command: "RUN_STATIC"})

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 exported events, got %d", len(events))
	}
	if events[0].Kind != KindTransition || events[0].Correlation.Mode != "realtime" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Severity != SeverityWarn {
		t.Fatalf("unexpected second event severity: %s", events[1].Severity)
	}

	stats := p.Stats()
	if stats.Enqueued != 2 || stats.Exported != 2 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPipelineDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	sink := &blockingSink{release: make(chan struct{}), inner: NewMemorySink()}
	p := NewPipeline(sink, Config{QueueCapacity: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			p.Emit(KindLifecycle, SeverityInfo, "tick", nil, Correlation{})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a saturated queue")
	}

	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	stats := p.Stats()
	if stats.Dropped == 0 {
		t.Fatalf("expected drops on saturated queue, stats: %+v", stats)
	}
	if stats.Enqueued+stats.Dropped != 10 {
		t.Fatalf("expected 10 events accounted for, stats: %+v", stats)
	}
}

func TestPipelineCountsExportFailures(t *testing.T) {
	t.Parallel()

	p := NewPipeline(failingSink{}, Config{QueueCapacity: 4})
	p.Emit(KindError, SeverityError, "boom", nil, Correlation{})
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if stats := p.Stats(); stats.ExportFailures != 1 {
		t.Fatalf("expected one export failure, stats: %+v", stats)
	}
}

type failingSink struct{}

func (failingSink) Export(context.Context, Event) error { return errors.New("sink down") }

func TestWriterSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	err := sink.Export(context.Background(), Event{
		Kind:        KindTransition,
		Severity:    SeverityInfo,
		TimestampMS: 42,
		Message:     "longform started",
		Correlation: Correlation{SessionID: "s1", Mode: "longform"},
	})
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not a JSON line: %v", err)
	}
	if decoded.Message != "longform started" || decoded.Correlation.Mode != "longform" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

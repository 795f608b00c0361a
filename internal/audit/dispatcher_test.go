package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

// fillQueue parks the worker inside a blocking sink and leaves the
// one-slot buffer full.
func fillQueue(t *testing.T, d *Dispatcher, eventType string) {
	t.Helper()
	d.Emit(context.Background(), Event{EventType: eventType})
	deadline := time.Now().Add(time.Second)
	for len(d.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first event")
		}
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: eventType})
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 || len(d.DroppedByType()) != 0 || d.IsCritical("x") {
		t.Fatal("nil dispatcher counters must be zero")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a 1-slot buffer")
	}

	close(sink.release)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if uint64(len(sink.got))+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", len(sink.got), d.Dropped())
	}
}

func TestDispatcherCountsDropsPerEventType(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	fillQueue(t, d, "login_success")
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	for i := 0; i < 4; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}

	byType := d.DroppedByType()
	if byType["login_success"] != 3 || byType["refresh_success"] != 4 || d.Dropped() != 7 {
		t.Fatalf("unexpected drops %v total %d", byType, d.Dropped())
	}

	byType["refresh_success"] = 0
	if d.DroppedByType()["refresh_success"] != 4 {
		t.Fatal("DroppedByType must return a copy")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherCriticalEventsWaitForSpace(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"logout_all"},
	}, sink)
	fillQueue(t, d, "login_success")

	queued := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "logout_all", SubjectID: "u-1"})
		close(queued)
	}()

	select {
	case <-queued:
		t.Fatal("critical event must wait while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	<-queued
	d.Close()

	if d.DroppedByType()["logout_all"] != 0 {
		t.Fatal("critical event must not be dropped")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, e := range sink.got {
		if e.EventType == "logout_all" {
			found = true
		}
	}
	if !found {
		t.Fatal("critical event never reached the sink")
	}
}

func TestDispatcherCriticalEventBoundedByContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"lockout_triggered"},
	}, sink)
	if !d.IsCritical("lockout_triggered") || d.IsCritical("login_failure") {
		t.Fatal("critical set not applied")
	}

	fillQueue(t, d, "login_failure")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "lockout_triggered"})

	if d.DroppedByType()["lockout_triggered"] != 1 {
		t.Fatalf("expected the timed-out critical event counted, got %v", d.DroppedByType())
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	d.Close()

	if d.Delivered() != 5 {
		t.Fatalf("expected 5 delivered, got %d", d.Delivered())
	}
	d.Emit(context.Background(), Event{EventType: "after_close"})
	if len(sink.Events()) != 5 {
		t.Fatalf("expected 5 events in sink, got %d", len(sink.Events()))
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout", SubjectID: "u-1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Reason: "bad_password"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Reason != "bad_password" || e.Success {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestLoggerSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLoggerSink(zerolog.New(&buf))
	sink.Emit(context.Background(), Event{Timestamp: time.Now(), EventType: "login_failure", Reason: "subject_inactive", IP: "10.0.0.1"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["level"] != "warn" || line["reason"] != "subject_inactive" || line["component"] != "audit" {
		t.Fatalf("unexpected log line %v", line)
	}
}

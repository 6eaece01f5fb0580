package agent

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func receiveEvent(t *testing.T, sink *ChannelSink) Event {
	t.Helper()
	select {
	case e := <-sink.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEventBusDelivery(t *testing.T) {
	bus := NewEventBus()
	sink := NewChannelSink(8)
	bus.Subscribe(sink)

	bus.emit(LevelInfo, "root", 0, "hello")

	e := receiveEvent(t, sink)
	if e.Level != LevelInfo || e.SourceID != "root" || e.Text != "hello" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Time.IsZero() {
		t.Error("expected timestamp to be stamped on emit")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	sink := NewChannelSink(8)
	unsub := bus.Subscribe(sink)

	bus.emit(LevelInfo, "root", 0, "one")
	unsub()
	bus.emit(LevelInfo, "root", 0, "two")

	e := receiveEvent(t, sink)
	if e.Text != "one" {
		t.Errorf("expected first event, got %q", e.Text)
	}
	select {
	case e := <-sink.Events():
		t.Errorf("received event after unsubscribe: %q", e.Text)
	default:
	}
}

func TestEventBusChildRelay(t *testing.T) {
	parent := NewEventBus()
	parentSink := NewChannelSink(8)
	parent.Subscribe(parentSink)

	child := parent.Child()
	childSink := NewChannelSink(8)
	child.Subscribe(childSink)

	// Child events reach both buses.
	child.emit(LevelLog, "agent_1", 1, "from child")
	if e := receiveEvent(t, childSink); e.Text != "from child" {
		t.Errorf("expected child sink delivery, got %q", e.Text)
	}
	if e := receiveEvent(t, parentSink); e.Text != "from child" {
		t.Errorf("expected relay to parent, got %q", e.Text)
	}

	// Parent events do not flow down.
	parent.emit(LevelLog, "root", 0, "from parent")
	if e := receiveEvent(t, parentSink); e.Text != "from parent" {
		t.Errorf("expected parent sink delivery, got %q", e.Text)
	}
	select {
	case e := <-childSink.Events():
		t.Errorf("parent event leaked to child sink: %q", e.Text)
	default:
	}
}

func TestLogCaptureLevels(t *testing.T) {
	c := NewLogCapture(0)

	c.Publish(Event{Level: LevelDebug, Depth: 0, Text: "dropped"})
	c.Publish(Event{Level: LevelInfo, Depth: 0, Text: "dropped too"})
	c.Publish(Event{Level: LevelLog, Depth: 0, Text: "progress"})
	c.Publish(Event{Level: LevelWarn, Depth: 0, Text: "careful"})
	c.Publish(Event{Level: LevelError, Depth: 0, Text: "broken"})

	lines := c.Drain()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "progress" {
		t.Errorf("expected bare log line, got %q", lines[0])
	}
	if lines[1] != "[warn] careful" {
		t.Errorf("expected warn prefix, got %q", lines[1])
	}
	if lines[2] != "[error] broken" {
		t.Errorf("expected error prefix, got %q", lines[2])
	}
}

func TestLogCaptureDepthWindow(t *testing.T) {
	// A capture at depth 1 keeps its own scope and direct children only.
	c := NewLogCapture(1)

	c.Publish(Event{Level: LevelLog, Depth: 1, Text: "own"})
	c.Publish(Event{Level: LevelLog, Depth: 2, Text: "child"})
	c.Publish(Event{Level: LevelLog, Depth: 3, Text: "grandchild"})

	lines := c.Drain()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "own" || lines[1] != "child" {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestLogCaptureDrainClears(t *testing.T) {
	c := NewLogCapture(0)
	c.Publish(Event{Level: LevelLog, Depth: 0, Text: "once"})

	if lines := c.Drain(); len(lines) != 1 {
		t.Fatalf("expected 1 line, got %v", lines)
	}
	if lines := c.Drain(); len(lines) != 0 {
		t.Errorf("expected empty second drain, got %v", lines)
	}
}

func TestLogCaptureBounded(t *testing.T) {
	c := NewLogCapture(0)
	for i := 0; i < maxCapturedLines+10; i++ {
		c.Publish(Event{Level: LevelLog, Depth: 0, Text: fmt.Sprintf("line %d", i)})
	}

	lines := c.Drain()
	if len(lines) != maxCapturedLines {
		t.Fatalf("expected buffer capped at %d, got %d", maxCapturedLines, len(lines))
	}
	// Oldest lines fall off first.
	if lines[0] != "line 10" {
		t.Errorf("expected oldest lines dropped, first is %q", lines[0])
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Publish(Event{Text: "kept"})
	sink.Publish(Event{Text: "dropped"})

	if e := <-sink.Events(); e.Text != "kept" {
		t.Errorf("expected first event kept, got %q", e.Text)
	}
	select {
	case e := <-sink.Events():
		t.Errorf("expected overflow dropped, got %q", e.Text)
	default:
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	sink.Publish(Event{Level: LevelDebug, SourceID: "root", Depth: 0, Text: "d"})
	sink.Publish(Event{Level: LevelLog, SourceID: "root", Depth: 0, Text: "l"})
	sink.Publish(Event{Level: LevelWarn, SourceID: "shell_1", Depth: 1, Text: "w"})
	sink.Publish(Event{Level: LevelError, SourceID: "root", Depth: 0, Text: "e"})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, entries[i].Level)
		}
	}
	if entries[2].ContextMap()["source"] != "shell_1" {
		t.Errorf("expected source field, got %v", entries[2].ContextMap())
	}
}

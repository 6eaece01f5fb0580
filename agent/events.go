package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level classifies bus events. LevelLog is reportable progress output,
// distinct from LevelInfo diagnostics.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one entry on the event bus. SourceID names the resource or agent
// scope that produced it; Depth is the absolute nesting depth of that scope.
type Event struct {
	Level    Level
	SourceID string
	Depth    int
	Text     string
	Time     time.Time
}

// Sink receives events. Publish must not block; slow consumers should wrap
// a ChannelSink.
type Sink interface {
	Publish(Event)
}

// EventBus fans events out to subscribed sinks. Each agent scope owns one
// bus; a child scope's bus relays every event to its parent, so the root bus
// sees the whole tree while a scope's own subscribers see only its subtree.
type EventBus struct {
	mu     sync.RWMutex
	sinks  []Sink
	parent *EventBus
}

// NewEventBus creates a root event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Child creates a bus whose events also propagate to b.
func (b *EventBus) Child() *EventBus {
	return &EventBus{parent: b}
}

// Subscribe attaches a sink and returns a function that detaches it.
func (b *EventBus) Subscribe(s Sink) func() {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.sinks {
			if existing == s {
				b.sinks = append(b.sinks[:i], b.sinks[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes an event to local sinks and up the parent chain. The
// timestamp is stamped here if unset.
func (b *EventBus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(e)
	}
	if b.parent != nil {
		b.parent.Emit(e)
	}
}

// emit is the convenience used throughout the package.
func (b *EventBus) emit(level Level, sourceID string, depth int, text string) {
	b.Emit(Event{Level: level, SourceID: sourceID, Depth: depth, Text: text})
}

// maxCapturedLines bounds a LogCapture buffer; oldest lines fall off first.
const maxCapturedLines = 1000

// LogCapture buffers reportable output from an agent scope for drain-on-read
// delivery. It keeps log, warn, and error events from sources at most one
// level below its base depth and drops debug and info entirely.
type LogCapture struct {
	mu        sync.Mutex
	baseDepth int
	lines     []string
}

// NewLogCapture creates a capture for a scope at the given absolute depth.
func NewLogCapture(baseDepth int) *LogCapture {
	return &LogCapture{baseDepth: baseDepth}
}

// Publish implements Sink.
func (c *LogCapture) Publish(e Event) {
	switch e.Level {
	case LevelLog, LevelWarn, LevelError:
	default:
		return
	}
	if e.Depth-c.baseDepth > 1 {
		return
	}

	line := e.Text
	if e.Level != LevelLog {
		line = "[" + string(e.Level) + "] " + line
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) >= maxCapturedLines {
		c.lines = c.lines[1:]
	}
	c.lines = append(c.lines, line)
}

// Drain returns all buffered lines and clears the buffer.
func (c *LogCapture) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines
	c.lines = nil
	return lines
}

// ChannelSink adapts a buffered channel to the Sink interface for consumers
// that range over events. When the buffer is full the event is dropped
// rather than blocking the emitter.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Publish implements Sink.
func (s *ChannelSink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// ZapSink forwards bus events to a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink backed by the given logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Publish implements Sink.
func (s *ZapSink) Publish(e Event) {
	fields := []zap.Field{
		zap.String("source", e.SourceID),
		zap.Int("depth", e.Depth),
	}
	switch e.Level {
	case LevelDebug:
		s.logger.Debug(e.Text, fields...)
	case LevelWarn:
		s.logger.Warn(e.Text, fields...)
	case LevelError:
		s.logger.Error(e.Text, fields...)
	default:
		s.logger.Info(e.Text, fields...)
	}
}

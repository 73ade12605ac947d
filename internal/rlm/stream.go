package rlm

import (
	"context"
	"sync"
	"time"
)

// StreamLogger is a single-producer/single-consumer ordered queue of Events
// (spec §4.5). The producer is the controller running on a background
// worker; the consumer is whatever external caller ranges over Events().
type StreamLogger struct {
	events chan Event

	metaOnce  sync.Once
	iterMu    sync.Mutex
	iterCount int
}

// NewStreamLogger returns a logger with the given channel buffer size.
func NewStreamLogger(buffer int) *StreamLogger {
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamLogger{events: make(chan Event, buffer)}
}

// Events returns the channel a consumer ranges over. It closes once
// SignalComplete has been called and its terminal event drained.
func (l *StreamLogger) Events() <-chan Event { return l.events }

func (l *StreamLogger) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.events <- e
}

// LogMetadata queues a metadata event. Idempotent: a second call is a no-op.
func (l *StreamLogger) LogMetadata(m RLMMetadata) {
	l.metaOnce.Do(func() {
		l.emit(Event{Type: EventMetadata, Metadata: &m})
	})
}

// LogToken queues a token event for the given iteration.
func (l *StreamLogger) LogToken(token string, iteration int) {
	l.emit(Event{Type: EventToken, Content: token, Iteration: iteration})
}

// LogCodeResult queues a code_result event.
func (l *StreamLogger) LogCodeResult(iteration int, code string, result REPLResult) {
	r := result
	l.emit(Event{Type: EventCodeResult, Iteration: iteration, Code: code, Result: &r})
}

// Log increments the monotone iteration counter and queues an iteration
// event. The returned number is what was assigned to this call.
func (l *StreamLogger) Log(it RLMIteration) int {
	l.iterMu.Lock()
	l.iterCount++
	n := l.iterCount
	l.iterMu.Unlock()
	it.IterationNumber = n
	l.emit(Event{Type: EventIteration, Iteration: n, IterationData: &it})
	return n
}

// LogError queues an error event.
func (l *StreamLogger) LogError(err error) {
	l.emit(Event{Type: EventError, Error: err.Error()})
}

// SignalComplete enqueues the terminal event and closes the channel. Safe to
// call exactly once per logger; StreamIterations calls it when its worker
// finishes, and Controller.Run never does (mirrors the single-producer
// ownership in spec §5).
func (l *StreamLogger) SignalComplete() {
	l.emit(Event{Type: EventComplete})
	close(l.events)
}

// RunFunc is the shape of the function StreamIterations drives: a
// completion() entry point over a context payload and root prompt.
type RunFunc func(ctx context.Context, docContext any, rootPrompt string) (string, error)

// StreamIterations spawns fn on a background worker and returns the event
// channel to range over until the terminal sentinel. If fn panics or
// returns an error, an error event is queued before the terminal sentinel.
// The worker is always joined before the terminal event is emitted, so a
// consumer draining Events() to completion is guaranteed fn has returned.
func (l *StreamLogger) StreamIterations(ctx context.Context, fn RunFunc, docContext any, rootPrompt string) <-chan Event {
	go func() {
		defer l.SignalComplete()
		defer func() {
			if r := recover(); r != nil {
				l.LogError(panicToError(r))
			}
		}()
		if _, err := fn(ctx, docContext, rootPrompt); err != nil {
			l.LogError(err)
		}
	}()
	return l.Events()
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "panic: " + formatAny(p.v) }

func formatAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}

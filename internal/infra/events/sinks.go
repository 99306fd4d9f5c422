// Package events implements registry event sinks: an in-memory recorder, a
// zerolog sink, a compressed JSONL log, a WebSocket stream and a fan-out
// combining them.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"creaturecore/pkg/domain"
)

var (
	_ domain.EventSink = (*Recorder)(nil)
	_ domain.EventSink = (*LogSink)(nil)
	_ domain.EventSink = Fanout(nil)
)

// Recorder keeps every emitted event in order.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit implements domain.EventSink.
func (r *Recorder) Emit(_ context.Context, event domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// LogSink writes each event as a structured zerolog line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a sink writing through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit implements domain.EventSink.
func (s *LogSink) Emit(_ context.Context, event domain.Event) {
	ev := s.log.Info().
		Str("event", string(event.Kind)).
		Str("account", string(event.Account)).
		Uint32("id", uint32(event.ID))
	if event.To != "" {
		ev = ev.Str("to", string(event.To))
	}
	ev.Msg("registry event")
}

// Fanout delivers each event to every sink in order.
type Fanout []domain.EventSink

// Emit implements domain.EventSink.
func (f Fanout) Emit(ctx context.Context, event domain.Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

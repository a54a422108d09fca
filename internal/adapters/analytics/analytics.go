// Package analytics provides AnalyticsSink implementations.
package analytics

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger writes every event as a structured log line.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{logger: log.With().Str("module", "analytics").Logger()}
}

func (l *Logger) Record(_ context.Context, ev core.AnalyticsEvent, payload map[string]any) {
	l.logger.Info().Str("event", string(ev)).Fields(payload).Msg("analytics event")
}

type Recorded struct {
	Event   core.AnalyticsEvent
	Payload map[string]any
}

// Memory keeps events in order for inspection.
type Memory struct {
	mu     sync.Mutex
	events []Recorded
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, ev core.AnalyticsEvent, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Recorded{Event: ev, Payload: payload})
}

func (m *Memory) Events() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func (m *Memory) Count(ev core.AnalyticsEvent) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.events {
		if r.Event == ev {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind ev.
func (m *Memory) Last(ev core.AnalyticsEvent) (Recorded, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Event == ev {
			return m.events[i], true
		}
	}
	return Recorded{}, false
}

// Multi fans events out to several sinks.
type Multi []core.AnalyticsSink

func (m Multi) Record(ctx context.Context, ev core.AnalyticsEvent, payload map[string]any) {
	for _, s := range m {
		s.Record(ctx, ev, payload)
	}
}

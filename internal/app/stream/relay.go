package stream

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// relay pumps one remote track into its sinks.
type relay struct {
	src core.RemoteTrack

	mu    sync.RWMutex
	sinks map[string]*Sink

	cancel context.CancelFunc
}

func newRelay(src core.RemoteTrack, cancel context.CancelFunc) *relay {
	return &relay{
		src:    src,
		sinks:  make(map[string]*Sink),
		cancel: cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
// Packets are read even without sinks so the receive buffers keep draining.
// A loop blocked in ReadRTP exits once the source track is closed.
func (r *relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done, marking all sinks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for name, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", name).Msg("relay write RTP error, dropping sink")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.mu.Lock()
		for _, name := range dirty {
			delete(r.sinks, name)
		}
		r.mu.Unlock()
	}
}

func (r *relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		s.MarkDelete()
	}
}

func (r *relay) addSink(name string, s *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = s
}

func (r *relay) sink(name string) (*Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}

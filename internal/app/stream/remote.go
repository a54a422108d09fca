// Package stream fans inbound media of a call out to local consumers.
package stream

import (
	"context"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TrackInfo describes a remote track without exposing the reader.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
}

// RemoteStream holds the inbound tracks of one call session.
type RemoteStream struct {
	sid    domain.SessionID
	logger zerolog.Logger

	mu     sync.RWMutex
	relays map[string]*relay
	closed bool
}

func NewRemoteStream(sid domain.SessionID) *RemoteStream {
	return &RemoteStream{
		sid:    sid,
		logger: log.With().Str("module", "stream").Str("sid", string(sid)).Logger(),
		relays: make(map[string]*relay),
	}
}

// AddTrack starts relaying a remote track. A track with the same id replaces the old relay.
func (s *RemoteStream) AddTrack(ctx context.Context, track core.RemoteTrack) {
	logger := s.logger.With().Str("track", track.ID()).Str("kind", track.Kind().String()).Logger()
	relayCtx, cancel := context.WithCancel(ctx)
	r := newRelay(track, cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	if old, ok := s.relays[track.ID()]; ok {
		logger.Info().Msg("replacing existing relay for track")
		old.markAllDelete()
		old.cancel()
	}
	s.relays[track.ID()] = r
	s.mu.Unlock()

	logger.Info().Msg("remote track added")
	go r.loop(relayCtx, &logger)
}

// Tracks lists the remote tracks currently relayed.
func (s *RemoteStream) Tracks() []TrackInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackInfo, 0, len(s.relays))
	for _, r := range s.relays {
		out = append(out, TrackInfo{ID: r.src.ID(), StreamID: r.src.StreamID(), Kind: r.src.Kind()})
	}
	return out
}

// AddSink attaches w to the remote track trackID under name.
func (s *RemoteStream) AddSink(trackID, name string, w core.PacketWriter) bool {
	s.mu.RLock()
	r, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	r.addSink(name, NewSink(w))
	return true
}

// SetSinkMuted pauses or resumes forwarding to one sink.
func (s *RemoteStream) SetSinkMuted(trackID, name string, muted bool) bool {
	s.mu.RLock()
	r, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	sink, ok := r.sink(name)
	if !ok {
		return false
	}
	if muted {
		sink.MarkMuted()
	} else {
		sink.MarkOk()
	}
	return true
}

func (s *RemoteStream) RemoveSink(trackID, name string) {
	s.mu.RLock()
	r, ok := s.relays[trackID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if sink, ok := r.sink(name); ok {
		sink.MarkDelete()
	}
}

// Close stops every relay. Safe to call more than once.
func (s *RemoteStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	relays := s.relays
	s.relays = make(map[string]*relay)
	s.mu.Unlock()

	for _, r := range relays {
		r.markAllDelete()
		r.cancel()
	}
	s.logger.Debug().Int("tracks", len(relays)).Msg("remote stream closed")
}

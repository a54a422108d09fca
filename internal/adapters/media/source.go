package media

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Stream is a set of sample tracks owned by one call session.
type Stream struct {
	mu    sync.Mutex
	audio []core.LocalTrack
	video []core.LocalTrack
}

var _ core.LocalStream = (*Stream)(nil)

func (s *Stream) AudioTracks() []core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audio)
}

func (s *Stream) VideoTracks() []core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.video)
}

func (s *Stream) SwapVideoTrack(t core.LocalTrack) core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.video) == 0 {
		s.video = []core.LocalTrack{t}
		return nil
	}
	old := s.video[0]
	s.video[0] = t
	return old
}

func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.audio {
		t.Stop()
	}
	for _, t := range s.video {
		t.Stop()
	}
}

// Permissions model the capture grants of the device.
type Permissions struct {
	DenyAudio bool
	DenyVideo bool
}

// Source hands out sample tracks. Callers feed them via OnTrack.
type Source struct {
	perms Permissions
	seq   atomic.Int64

	// OnTrack, when set, is called for every track created.
	OnTrack func(*SampleTrack)
}

var _ core.MediaSource = (*Source)(nil)

func NewSource(perms Permissions) *Source {
	return &Source{perms: perms}
}

func (s *Source) GetUserMedia(_ context.Context, c core.MediaConstraints) (core.LocalStream, error) {
	if (c.Audio && s.perms.DenyAudio) || (c.Video && s.perms.DenyVideo) {
		return nil, fmt.Errorf("media: capture %+v: %w", c, core.ErrPermissionDenied)
	}
	n := s.seq.Add(1)
	streamID := fmt.Sprintf("local-%d", n)
	out := &Stream{}

	if c.Audio {
		t, err := NewSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio-"+streamID, streamID)
		if err != nil {
			return nil, fmt.Errorf("media: audio track: %w", err)
		}
		out.audio = append(out.audio, t)
		s.notify(t)
	}
	if c.Video {
		facing := c.Facing
		if facing == "" {
			facing = core.FacingUser
		}
		t, err := NewSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, fmt.Sprintf("video-%s-%s", facing, streamID), streamID)
		if err != nil {
			return nil, fmt.Errorf("media: video track: %w", err)
		}
		out.video = append(out.video, t)
		s.notify(t)
	}
	log.Debug().Str("module", "media").Str("stream", streamID).Bool("audio", c.Audio).Bool("video", c.Video).Msg("local stream acquired")
	return out, nil
}

func (s *Source) notify(t *SampleTrack) {
	if s.OnTrack != nil {
		s.OnTrack(t)
	}
}

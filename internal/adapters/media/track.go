// Package media provides sample-fed local capture for headless clients.
package media

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var ErrTrackStopped = errors.New("media: track stopped")

// opusSilence is a single 20ms Opus DTX frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleTrack is a local track fed by WriteSample. A disabled audio track
// sends silence and a disabled video track sends nothing, so the receiver
// keeps the last frame.
type SampleTrack struct {
	*webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
}

var _ core.LocalTrack = (*SampleTrack)(nil)

func NewSampleTrack(codec webrtc.RTPCodecCapability, id, streamID string) (*SampleTrack, error) {
	inner, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &SampleTrack{TrackLocalStaticSample: inner}
	t.enabled.Store(true)
	return t, nil
}

func (t *SampleTrack) SetEnabled(v bool) { t.enabled.Store(v) }
func (t *SampleTrack) Enabled() bool     { return t.enabled.Load() }
func (t *SampleTrack) Stopped() bool     { return t.stopped.Load() }
func (t *SampleTrack) Stop()             { t.stopped.Store(true) }

func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		if t.Kind() != webrtc.RTPCodecTypeAudio {
			return nil
		}
		s = pionmedia.Sample{Data: opusSilence, Duration: s.Duration}
	}
	return t.TrackLocalStaticSample.WriteSample(s)
}

// Pump writes frame every interval until ctx is done or the track stops.
func Pump(ctx context.Context, t *SampleTrack, frame []byte, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				if errors.Is(err, ErrTrackStopped) {
					return nil
				}
				return err
			}
		}
	}
}

// FrameInterval is the packetization time of generated audio.
const FrameInterval = 20 * time.Millisecond

// Feed keeps an audio track alive with Opus silence until ctx is done.
// Video tracks have no synthetic source and return immediately.
func Feed(ctx context.Context, t *SampleTrack) error {
	if t.Kind() != webrtc.RTPCodecTypeAudio {
		return nil
	}
	return Pump(ctx, t, opusSilence, FrameInterval)
}

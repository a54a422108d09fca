package media

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserMediaBuildsTracks(t *testing.T) {
	var created []*SampleTrack
	src := NewSource(Permissions{})
	src.OnTrack = func(t *SampleTrack) { created = append(created, t) }

	stream, err := src.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true, Video: true, Facing: core.FacingEnvironment})
	require.NoError(t, err)
	require.Len(t, stream.AudioTracks(), 1)
	require.Len(t, stream.VideoTracks(), 1)
	assert.Len(t, created, 2)

	assert.Equal(t, webrtc.RTPCodecTypeAudio, stream.AudioTracks()[0].Kind())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, stream.VideoTracks()[0].Kind())
	assert.Contains(t, stream.VideoTracks()[0].ID(), "environment")

	stream.Stop()
	for _, tr := range created {
		assert.True(t, tr.Stopped())
	}
}

func TestGetUserMediaPermissionDenied(t *testing.T) {
	src := NewSource(Permissions{DenyVideo: true})

	_, err := src.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true, Video: true})
	require.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = src.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true})
	require.NoError(t, err)
}

func TestSampleTrackMuteAndStop(t *testing.T) {
	tr, err := NewSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "a", "s")
	require.NoError(t, err)
	assert.True(t, tr.Enabled())

	tr.SetEnabled(false)
	assert.False(t, tr.Enabled())
	// unbound tracks accept writes silently
	assert.NoError(t, tr.WriteSample(pionmedia.Sample{Data: []byte{1, 2, 3}, Duration: 20 * time.Millisecond}))

	tr.Stop()
	assert.ErrorIs(t, tr.WriteSample(pionmedia.Sample{Data: []byte{1}}), ErrTrackStopped)
	assert.NoError(t, Pump(context.Background(), tr, []byte{1}, time.Millisecond))
}

func TestStreamSwapVideoTrack(t *testing.T) {
	src := NewSource(Permissions{})
	stream, err := src.GetUserMedia(context.Background(), core.MediaConstraints{Video: true})
	require.NoError(t, err)
	old := stream.VideoTracks()[0]

	next, err := src.GetUserMedia(context.Background(), core.MediaConstraints{Video: true, Facing: core.FacingEnvironment})
	require.NoError(t, err)
	replacement := next.VideoTracks()[0]

	assert.Same(t, old, stream.SwapVideoTrack(replacement))
	assert.Same(t, replacement, stream.VideoTracks()[0])
}

func TestFeedSkipsVideoAndStopsWithTrack(t *testing.T) {
	src := NewSource(Permissions{})
	s, err := src.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true, Video: true})
	require.NoError(t, err)

	video := s.VideoTracks()[0].(*SampleTrack)
	assert.NoError(t, Feed(context.Background(), video))

	audio := s.AudioTracks()[0].(*SampleTrack)
	audio.Stop()
	assert.NoError(t, Feed(context.Background(), audio))
}

package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAudioTrack(t *testing.T, id string) *webrtc.TrackLocalStaticSample {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "test")
	require.NoError(t, err)
	return track
}

func TestOfferAnswerExchange(t *testing.T) {
	f := NewFactory(StaticProvider(nil), nil)
	ctx := context.Background()

	caller, err := f.NewPeerConnection(ctx, "s1")
	require.NoError(t, err)
	defer caller.Close()
	callee, err := f.NewPeerConnection(ctx, "s1")
	require.NoError(t, err)
	defer callee.Close()

	_, err = caller.AddTrack(newAudioTrack(t, "mic"))
	require.NoError(t, err)
	offer, err := caller.CreateOffer(false)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")

	require.NoError(t, callee.SetRemoteDescription(offer))
	sender, err := callee.AddTrack(newAudioTrack(t, "mic"))
	require.NoError(t, err)
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	require.NoError(t, caller.SetRemoteDescription(answer))

	require.NoError(t, sender.ReplaceTrack(newAudioTrack(t, "mic2")))
}

func TestRestartOfferAndRollback(t *testing.T) {
	f := NewFactory(StaticProvider(nil), nil)
	ctx := context.Background()

	caller, err := f.NewPeerConnection(ctx, "s1")
	require.NoError(t, err)
	defer caller.Close()
	callee, err := f.NewPeerConnection(ctx, "s1")
	require.NoError(t, err)
	defer callee.Close()

	// an ICE restart needs a negotiated connection
	_, err = caller.AddTrack(newAudioTrack(t, "mic"))
	require.NoError(t, err)
	offer, err := caller.CreateOffer(false)
	require.NoError(t, err)
	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, caller.SetRemoteDescription(answer))

	restart, err := caller.CreateOffer(true)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, restart.Type)
	require.NoError(t, caller.Rollback())

	// stable again, a fresh offer is accepted
	_, err = caller.CreateOffer(false)
	require.NoError(t, err)
}

func TestRollbackPlainOffer(t *testing.T) {
	pc, err := NewFactory(StaticProvider(nil), nil).NewPeerConnection(context.Background(), "s1")
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.AddTrack(newAudioTrack(t, "mic"))
	require.NoError(t, err)
	_, err = pc.CreateOffer(false)
	require.NoError(t, err)
	require.NoError(t, pc.Rollback())
}

func TestAddICECandidateNeedsRemoteDescription(t *testing.T) {
	pc, err := NewFactory(StaticProvider(nil), nil).NewPeerConnection(context.Background(), "s1")
	require.NoError(t, err)
	defer pc.Close()

	err = pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host"})
	assert.Error(t, err)
}

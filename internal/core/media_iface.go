package core

import (
	"context"
	"errors"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// ErrPermissionDenied is returned by a MediaSource when capture is refused.
var ErrPermissionDenied = errors.New("media permission denied")

// PeerConnection is the slice of an RTCPeerConnection the call core drives.
type PeerConnection interface {
	SetRemoteDescription(webrtc.SessionDescription) error
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	// Rollback discards a pending local offer.
	Rollback() error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (TrackSender, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// Close should stop all underlying media resources.
	Close() error
}

// PeerConnectionFactory builds one connection per call session.
type PeerConnectionFactory interface {
	NewPeerConnection(ctx context.Context, sid domain.SessionID) (PeerConnection, error)
}

// TrackSender replaces an outgoing track without renegotiation.
type TrackSender interface {
	ReplaceTrack(webrtc.TrackLocal) error
}

// RemoteTrack is an inbound media track. *webrtc.TrackRemote implements it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	PacketReader
}

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

func (f FacingMode) Opposite() FacingMode {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

type MediaConstraints struct {
	Audio  bool
	Video  bool
	Facing FacingMode
}

// LocalTrack is a captured track the manager may mute without removing it.
type LocalTrack interface {
	webrtc.TrackLocal
	SetEnabled(bool)
	Enabled() bool
	Stop()
}

// LocalStream is owned exclusively by the session that acquired it.
type LocalStream interface {
	AudioTracks() []LocalTrack
	VideoTracks() []LocalTrack
	// SwapVideoTrack installs t as the video track and returns the previous one.
	SwapVideoTrack(t LocalTrack) LocalTrack
	Stop()
}

// MediaSource acquires capture streams.
type MediaSource interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (LocalStream, error)
}

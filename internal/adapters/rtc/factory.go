package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Factory builds pion peer connections configured from an ICE provider.
type Factory struct {
	ice core.ICEServerProvider
	api *webrtc.API
}

// NewFactory uses api when given, the pion default API otherwise.
func NewFactory(ice core.ICEServerProvider, api *webrtc.API) *Factory {
	if ice == nil {
		ice = StaticProvider(DefaultSTUN())
	}
	return &Factory{ice: ice, api: api}
}

func (f *Factory) NewPeerConnection(ctx context.Context, sid domain.SessionID) (core.PeerConnection, error) {
	servers, err := f.ice.GetICEServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtc: ice servers: %w", err)
	}
	cfg := webrtc.Configuration{ICEServers: servers}

	var pc *webrtc.PeerConnection
	if f.api != nil {
		pc, err = f.api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("rtc: new peer connection: %w", err)
	}
	return newWebRTCConnection(pc, sid), nil
}

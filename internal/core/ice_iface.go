package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// ICEServerProvider looks up STUN/TURN servers for a new connection.
type ICEServerProvider interface {
	GetICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

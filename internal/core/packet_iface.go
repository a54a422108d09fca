package core

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// PacketReader yields RTP packets from an inbound track.
type PacketReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// PacketWriter accepts forwarded RTP packets. *webrtc.TrackLocalStaticRTP implements it.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
}

package core

import (
	"context"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
)

// Frame is a raw text payload exchanged over the relay.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalTransport carries call signaling to the other participant of a
// conversation. Delivery is at-least-once: receivers must tolerate duplicates.
type SignalTransport interface {
	Send(ctx context.Context, conversation domain.ConversationID, msg signaling.Message) error
}

// SignalHandler consumes decoded inbound signaling messages.
type SignalHandler interface {
	HandleSignalingMessage(ctx context.Context, msg signaling.Message)
}

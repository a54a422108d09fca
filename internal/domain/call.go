package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID identifies a single call attempt end-to-end.
type SessionID string

// NewSessionID returns a fresh UUID-class identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

func (t CallType) HasVideo() bool { return t == CallTypeVideo }

// ParseCallType accepts the wire names; "audio" is tolerated as an alias of voice.
func ParseCallType(s string) (CallType, error) {
	switch s {
	case "voice", "audio":
		return CallTypeVoice, nil
	case "video":
		return CallTypeVideo, nil
	default:
		return "", fmt.Errorf("unknown call type %q", s)
	}
}

type CallState string

const (
	CallStateIdle       CallState = "idle"
	CallStateInitiating CallState = "initiating"
	CallStateRinging    CallState = "ringing"
	CallStateConnecting CallState = "connecting"
	CallStateConnected  CallState = "connected"
	CallStateEnded      CallState = "ended"
)

// Active reports whether the state belongs to a live session.
func (s CallState) Active() bool {
	switch s {
	case CallStateInitiating, CallStateRinging, CallStateConnecting, CallStateConnected:
		return true
	}
	return false
}

// CallStatus is the status recorded in the call log.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusDeclined  CallStatus = "declined"
	CallStatusTimeout   CallStatus = "timeout"
)

// Direction tells which side created the session.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

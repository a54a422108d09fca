// Package signaling defines the call signaling messages exchanged between
// the two participants of a conversation and their JSON wire format.
//
// Message is a closed set: only the variants declared here implement it.
package signaling

import (
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeOffer             Type = "offer"
	TypeAnswer            Type = "answer"
	TypeICE               Type = "ice"
	TypeICECandidate      Type = "ice-candidate"
	TypeRestart           Type = "restart"
	TypeRenegotiate       Type = "renegotiate"
	TypeRenegotiateAnswer Type = "renegotiate-answer"
	TypeTimeout           Type = "timeout"
	TypeEnd               Type = "end"
	TypeDecline           Type = "decline"
)

// IsSignal reports whether t names a call signaling message.
func IsSignal(t Type) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICE, TypeICECandidate, TypeRestart,
		TypeRenegotiate, TypeRenegotiateAnswer, TypeTimeout, TypeEnd, TypeDecline:
		return true
	}
	return false
}

// Message is one signaling message. Every variant carries the session id.
type Message interface {
	Type() Type
	Session() domain.SessionID
	isMessage()
}

// Offer starts a new session.
type Offer struct {
	SessionID domain.SessionID
	SDP       string
	CallType  domain.CallType
}

// Answer replies to an Offer or a Restart.
type Answer struct {
	SessionID domain.SessionID
	SDP       string
}

// Candidate trickles one ICE candidate.
type Candidate struct {
	SessionID domain.SessionID
	Candidate webrtc.ICECandidateInit
}

// Restart is an ICE-restart offer inside an existing session.
type Restart struct {
	SessionID domain.SessionID
	SDP       string
}

// Renegotiate is a mid-call offer that changes media parameters.
type Renegotiate struct {
	SessionID domain.SessionID
	SDP       string
}

type RenegotiateAnswer struct {
	SessionID domain.SessionID
	SDP       string
}

// Timeout tells the callee the caller gave up ringing.
type Timeout struct{ SessionID domain.SessionID }

type End struct{ SessionID domain.SessionID }

type Decline struct{ SessionID domain.SessionID }

func (Offer) Type() Type             { return TypeOffer }
func (Answer) Type() Type            { return TypeAnswer }
func (Candidate) Type() Type         { return TypeICECandidate }
func (Restart) Type() Type           { return TypeRestart }
func (Renegotiate) Type() Type       { return TypeRenegotiate }
func (RenegotiateAnswer) Type() Type { return TypeRenegotiateAnswer }
func (Timeout) Type() Type           { return TypeTimeout }
func (End) Type() Type               { return TypeEnd }
func (Decline) Type() Type           { return TypeDecline }

func (m Offer) Session() domain.SessionID             { return m.SessionID }
func (m Answer) Session() domain.SessionID            { return m.SessionID }
func (m Candidate) Session() domain.SessionID         { return m.SessionID }
func (m Restart) Session() domain.SessionID           { return m.SessionID }
func (m Renegotiate) Session() domain.SessionID       { return m.SessionID }
func (m RenegotiateAnswer) Session() domain.SessionID { return m.SessionID }
func (m Timeout) Session() domain.SessionID           { return m.SessionID }
func (m End) Session() domain.SessionID               { return m.SessionID }
func (m Decline) Session() domain.SessionID           { return m.SessionID }

func (Offer) isMessage()             {}
func (Answer) isMessage()            {}
func (Candidate) isMessage()         {}
func (Restart) isMessage()           {}
func (Renegotiate) isMessage()       {}
func (RenegotiateAnswer) isMessage() {}
func (Timeout) isMessage()           {}
func (End) isMessage()               {}
func (Decline) isMessage()           {}

// Description returns the session description an SDP-bearing message carries.
// Offers, restarts and renegotiations map to SDP offers, the rest to answers.
func Description(m Message) (webrtc.SessionDescription, bool) {
	switch v := m.(type) {
	case Offer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: v.SDP}, true
	case Restart:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: v.SDP}, true
	case Renegotiate:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: v.SDP}, true
	case Answer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: v.SDP}, true
	case RenegotiateAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: v.SDP}, true
	}
	return webrtc.SessionDescription{}, false
}

package core

import "github.com/dkeye/voicecall/internal/domain"

// ClientID is the relay-side identity of one connected client (its client token).
type ClientID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a conversation hub stores and forwards to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
}

package app

import "github.com/dkeye/voicecall/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(hub core.ConversationHub, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks any member whose send buffer is full. Signaling is
// useless to a peer that lost frames mid-negotiation.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ConversationHub, core.MemberSession) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the member.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(core.ConversationHub, core.MemberSession) BackpressureAction {
	return DropFrame
}

package core

import "github.com/dkeye/voicecall/internal/domain"

type memberSession struct {
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{meta: meta, signal: signal}
}

func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

// UpdateSignal returns a copy bound to a new connection; the meta is shared.
func (m *memberSession) UpdateSignal(sc SignalConnection) MemberSession {
	return &memberSession{meta: m.meta, signal: sc}
}

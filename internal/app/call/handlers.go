package call

import (
	"context"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/rs/zerolog/log"
)

// HandleSignalingMessage applies one inbound message. Duplicates and
// messages for sessions other than the active one are dropped.
func (m *Manager) HandleSignalingMessage(ctx context.Context, msg signaling.Message) {
	switch v := msg.(type) {
	case signaling.Offer:
		m.onOffer(ctx, v)
	case signaling.Answer:
		m.onAnswer(v)
	case signaling.Candidate:
		m.onCandidate(v)
	case signaling.Restart:
		m.onInSessionOffer(ctx, v)
	case signaling.Renegotiate:
		m.onInSessionOffer(ctx, v)
	case signaling.RenegotiateAnswer:
		m.onRenegotiateAnswer(v)
	case signaling.Timeout:
		m.onTerminal(v, domain.CallStatusTimeout)
	case signaling.End:
		m.onTerminal(v, domain.CallStatusEnded)
	case signaling.Decline:
		m.onTerminal(v, domain.CallStatusDeclined)
	default:
		log.Warn().Str("module", "call").Msgf("unhandled signaling message %T", msg)
	}
}

// activeLocked returns the session msg belongs to, if it is the active one.
func (m *Manager) activeLocked(msg signaling.Message) (*Session, bool) {
	sess := m.session
	if sess == nil || sess.id != msg.Session() {
		log.Debug().
			Str("module", "call").
			Str("conversation", string(m.conversation)).
			Str("sid", string(msg.Session())).
			Str("type", string(msg.Type())).
			Msg("stale signaling message discarded")
		return nil, false
	}
	return sess, true
}

func (m *Manager) onOffer(ctx context.Context, offer signaling.Offer) {
	m.mu.Lock()
	if m.retired.has(offer.SessionID) {
		m.mu.Unlock()
		log.Debug().Str("module", "call").Str("sid", string(offer.SessionID)).Msg("offer for finished session ignored")
		return
	}
	if cur := m.session; cur != nil {
		if cur.id == offer.SessionID {
			m.mu.Unlock()
			cur.logger.Debug().Msg("duplicate offer ignored")
			return
		}
		if cur.engaged() {
			m.mu.Unlock()
			cur.logger.Info().Str("incoming", string(offer.SessionID)).Msg("busy, declining incoming offer")
			if err := m.send(ctx, signaling.Decline{SessionID: offer.SessionID}); err != nil {
				log.Warn().Str("module", "call").Str("sid", string(offer.SessionID)).Err(err).Msg("busy decline failed")
			}
			return
		}
		m.supersedeLocked(cur)
	}
	ct := offer.CallType
	if !ct.Valid() {
		ct = domain.CallTypeVoice
	}
	sess := newSession(offer.SessionID, m.conversation, ct, domain.DirectionIncoming)
	m.session = sess
	m.setStateLocked(sess, domain.CallStateRinging)
	m.events.publish(IncomingCall{SessionID: sess.id, CallType: sess.callType, Offer: offer})
	m.mu.Unlock()
}

func (m *Manager) onAnswer(ans signaling.Answer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.activeLocked(ans)
	if !ok {
		return
	}
	if sess.pc == nil {
		sess.logger.Debug().Msg("answer before peer connection, ignored")
		return
	}
	desc, _ := signaling.Description(ans)

	switch {
	case sess.restartPending:
		if err := sess.pc.SetRemoteDescription(desc); err != nil {
			m.reportLocked(sess, "restart_answer", err)
			return
		}
		sess.restartPending = false
		sess.logger.Info().Int("attempt", sess.restarts).Msg("ice restart answered")
	case sess.direction == domain.DirectionOutgoing && !sess.answered:
		if err := sess.pc.SetRemoteDescription(desc); err != nil {
			m.reportLocked(sess, "answer", err)
			return
		}
		stopTimer(&sess.ringTimer)
		sess.answered = true
		m.openICELocked(sess)
		m.setStateLocked(sess, domain.CallStateConnecting)
	default:
		sess.logger.Debug().Msg("duplicate answer ignored")
	}
}

func (m *Manager) onCandidate(c signaling.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.activeLocked(c)
	if !ok {
		return
	}
	if sess.pc == nil || !sess.ice.remoteSet {
		sess.ice.push(c.Candidate)
		sess.logger.Debug().Int("queued", len(sess.ice.pending)).Msg("ice candidate queued")
		return
	}
	if err := sess.pc.AddICECandidate(c.Candidate); err != nil {
		sess.logger.Warn().Err(err).Msg("add ice candidate")
	}
}

// onInSessionOffer answers a peer restart or renegotiation without changing state.
// On glare the caller keeps its own offer and the callee rolls back.
func (m *Manager) onInSessionOffer(ctx context.Context, msg signaling.Message) {
	m.mu.Lock()
	sess, ok := m.activeLocked(msg)
	if !ok {
		m.mu.Unlock()
		return
	}
	if sess.pc == nil || !sess.ice.remoteSet {
		m.mu.Unlock()
		sess.logger.Debug().Str("type", string(msg.Type())).Msg("in-session offer before negotiation, ignored")
		return
	}
	if sess.restartPending || sess.renegotiating {
		if sess.direction == domain.DirectionOutgoing {
			m.mu.Unlock()
			sess.logger.Info().Str("type", string(msg.Type())).Msg("offer collision, keeping local offer")
			return
		}
		if err := sess.pc.Rollback(); err != nil {
			m.reportLocked(sess, "rollback", err)
			m.mu.Unlock()
			return
		}
		sess.logger.Info().Str("type", string(msg.Type())).Msg("offer collision, rolled back local offer")
		sess.restartPending = false
		sess.renegotiating = false
	}

	desc, _ := signaling.Description(msg)
	if err := sess.pc.SetRemoteDescription(desc); err != nil {
		m.reportLocked(sess, string(msg.Type()), err)
		m.mu.Unlock()
		return
	}
	answer, err := sess.pc.CreateAnswer()
	if err != nil {
		m.reportLocked(sess, string(msg.Type()), err)
		m.mu.Unlock()
		return
	}

	var reply signaling.Message
	if _, restart := msg.(signaling.Restart); restart {
		reply = signaling.Answer{SessionID: sess.id, SDP: answer.SDP}
	} else {
		reply = signaling.RenegotiateAnswer{SessionID: sess.id, SDP: answer.SDP}
		m.life.record(core.EventRenegotiationAnswered, map[string]any{"session_id": string(sess.id)})
	}
	logger := sess.logger
	m.mu.Unlock()

	if err := m.send(ctx, reply); err != nil {
		logger.Warn().Err(err).Str("type", string(reply.Type())).Msg("reply to in-session offer failed")
	}
}

func (m *Manager) onRenegotiateAnswer(ans signaling.RenegotiateAnswer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.activeLocked(ans)
	if !ok {
		return
	}
	if !sess.renegotiating || sess.pc == nil {
		sess.logger.Debug().Msg("unexpected renegotiate-answer ignored")
		return
	}
	desc, _ := signaling.Description(ans)
	if err := sess.pc.SetRemoteDescription(desc); err != nil {
		m.reportLocked(sess, "renegotiate_answer", err)
		return
	}
	sess.renegotiating = false
	m.life.record(core.EventRenegotiationCompleted, map[string]any{"session_id": string(sess.id)})
}

func (m *Manager) onTerminal(msg signaling.Message, status domain.CallStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.activeLocked(msg)
	if !ok {
		return
	}
	m.finishLocked(sess, status, "remote "+string(msg.Type()))
}

// reportLocked records a non-fatal negotiation error; the call stays as it is.
func (m *Manager) reportLocked(sess *Session, stage string, err error) {
	sess.logger.Warn().Err(err).Str("stage", stage).Msg("negotiation step failed")
	m.life.record(core.EventCallError, map[string]any{
		"session_id": string(sess.id),
		"stage":      stage,
		"error":      err.Error(),
	})
	m.events.publish(NegotiationFailed{SessionID: sess.id, Stage: stage, Err: err})
}

package call

import (
	"context"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

func constraintsFor(ct domain.CallType, facing core.FacingMode) core.MediaConstraints {
	return core.MediaConstraints{Audio: true, Video: ct.HasVideo(), Facing: facing}
}

// StartCall places an outgoing call. Any existing session is torn down first.
// The ring timer starts once the offer has been delivered.
func (m *Manager) StartCall(ctx context.Context, ct domain.CallType) error {
	if !ct.Valid() {
		return fmt.Errorf("%w: unknown call type %q", ErrInvalidState, ct)
	}
	sess := newSession(domain.NewSessionID(), m.conversation, ct, domain.DirectionOutgoing)

	m.mu.Lock()
	if old := m.session; old != nil {
		m.supersedeLocked(old)
	}
	m.session = sess
	sess.startedAt = m.clock.Now()
	m.setStateLocked(sess, domain.CallStateInitiating)
	m.mu.Unlock()

	local, err := m.media.GetUserMedia(ctx, constraintsFor(ct, sess.facing))
	if err != nil {
		m.abort(sess, "media", err)
		return fmt.Errorf("call: acquire local media: %w", err)
	}
	pc, err := m.peers.NewPeerConnection(ctx, sess.id)
	if err != nil {
		local.Stop()
		m.abort(sess, "peer_connection", err)
		return fmt.Errorf("call: create peer connection: %w", err)
	}

	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		local.Stop()
		_ = pc.Close()
		return ErrSuperseded
	}
	sess.local = local
	m.attachPeerLocked(sess, pc)
	offer, err := m.prepareOfferLocked(sess)
	if err != nil {
		m.abortLocked(sess, "offer", err)
		m.mu.Unlock()
		return fmt.Errorf("call: create offer: %w", err)
	}
	sess.log = &callLog{}
	m.life.open(sess.log, sess.id, ct, m.participants(), core.CallLogUpdate{
		Status:    domain.CallStatusInitiated,
		StartedAt: sess.startedAt,
	})
	m.life.record(core.EventCallInitiated, map[string]any{
		"session_id": string(sess.id),
		"call_type":  string(ct),
	})
	m.mu.Unlock()

	if err := m.send(ctx, signaling.Offer{SessionID: sess.id, SDP: offer.SDP, CallType: ct}); err != nil {
		m.abort(sess, "signal", err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		return ErrSuperseded
	}
	// the answer may already have been applied while the send was in flight
	if sess.state == domain.CallStateInitiating {
		m.setStateLocked(sess, domain.CallStateRinging)
		m.startRingTimerLocked(sess)
	}
	return nil
}

func (m *Manager) prepareOfferLocked(sess *Session) (webrtc.SessionDescription, error) {
	if err := m.addLocalTracksLocked(sess); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return sess.pc.CreateOffer(false)
}

func (m *Manager) addLocalTracksLocked(sess *Session) error {
	for _, t := range sess.local.AudioTracks() {
		if _, err := sess.pc.AddTrack(t); err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
	}
	for _, t := range sess.local.VideoTracks() {
		sender, err := sess.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		sess.videoSender = sender
	}
	return nil
}

// AnswerCall accepts an incoming offer. The session id is taken from the offer;
// candidates queued while it was ringing are carried over.
func (m *Manager) AnswerCall(ctx context.Context, offer signaling.Offer, ct domain.CallType) error {
	if offer.SessionID == "" || offer.SDP == "" {
		return fmt.Errorf("%w: offer without session id or sdp", ErrInvalidState)
	}
	if !ct.Valid() {
		ct = offer.CallType
	}
	if !ct.Valid() {
		ct = domain.CallTypeVoice
	}

	m.mu.Lock()
	if m.retired.has(offer.SessionID) {
		m.mu.Unlock()
		return ErrSuperseded
	}
	var sess *Session
	if cur := m.session; cur != nil && cur.id == offer.SessionID {
		if cur.answered || cur.direction != domain.DirectionIncoming {
			m.mu.Unlock()
			return fmt.Errorf("%w: session already answered", ErrInvalidState)
		}
		sess = cur
		sess.callType = ct
	} else {
		if cur != nil {
			m.supersedeLocked(cur)
		}
		sess = newSession(offer.SessionID, m.conversation, ct, domain.DirectionIncoming)
		m.session = sess
	}
	sess.answered = true
	sess.startedAt = m.clock.Now()
	m.setStateLocked(sess, domain.CallStateConnecting)
	m.mu.Unlock()

	local, err := m.media.GetUserMedia(ctx, constraintsFor(ct, sess.facing))
	if err != nil {
		m.abort(sess, "media", err)
		return fmt.Errorf("call: acquire local media: %w", err)
	}
	pc, err := m.peers.NewPeerConnection(ctx, sess.id)
	if err != nil {
		local.Stop()
		m.abort(sess, "peer_connection", err)
		return fmt.Errorf("call: create peer connection: %w", err)
	}

	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		local.Stop()
		_ = pc.Close()
		return ErrSuperseded
	}
	sess.local = local
	m.attachPeerLocked(sess, pc)
	answer, err := m.acceptOfferLocked(sess, offer)
	if err != nil {
		m.abortLocked(sess, "answer", err)
		m.mu.Unlock()
		return fmt.Errorf("call: answer offer: %w", err)
	}
	sess.log = &callLog{}
	m.life.open(sess.log, sess.id, ct, m.participants(), core.CallLogUpdate{
		Status:    domain.CallStatusAnswered,
		StartedAt: sess.startedAt,
	})
	m.mu.Unlock()

	if err := m.send(ctx, signaling.Answer{SessionID: sess.id, SDP: answer.SDP}); err != nil {
		m.abort(sess, "signal", err)
		return err
	}
	return nil
}

// acceptOfferLocked applies the remote offer before any local track is added.
func (m *Manager) acceptOfferLocked(sess *Session, offer signaling.Offer) (webrtc.SessionDescription, error) {
	desc, _ := signaling.Description(offer)
	if err := sess.pc.SetRemoteDescription(desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	m.openICELocked(sess)
	if err := m.addLocalTracksLocked(sess); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return sess.pc.CreateAnswer()
}

func (m *Manager) openICELocked(sess *Session) {
	n, err := sess.ice.open(sess.pc)
	if err != nil {
		sess.logger.Warn().Err(err).Msg("queued ice candidates rejected")
	}
	if n > 0 {
		sess.logger.Debug().Int("count", n).Msg("flushed queued ice candidates")
	}
}

// DeclineCall rejects the ringing incoming session.
func (m *Manager) DeclineCall(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if sess.direction != domain.DirectionIncoming || sess.answered {
		m.mu.Unlock()
		return fmt.Errorf("%w: only a ringing incoming call can be declined", ErrInvalidState)
	}
	id := sess.id
	sess.log = &callLog{}
	m.life.open(sess.log, id, sess.callType, m.participants(), core.CallLogUpdate{
		Status:    domain.CallStatusDeclined,
		StartedAt: m.clock.Now(),
	})
	m.finishLocked(sess, domain.CallStatusDeclined, "declined locally")
	m.mu.Unlock()

	return m.send(ctx, signaling.Decline{SessionID: id})
}

// EndCall hangs up the active session and notifies the peer.
func (m *Manager) EndCall(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if !sess.engaged() {
		m.mu.Unlock()
		return m.DeclineCall(ctx)
	}
	id := sess.id
	m.finishLocked(sess, domain.CallStatusEnded, "local hangup")
	m.mu.Unlock()

	return m.send(ctx, signaling.End{SessionID: id})
}

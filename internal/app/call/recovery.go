package call

import (
	"github.com/dkeye/voicecall/internal/app/stream"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// attachPeerLocked binds pc callbacks to sess. Callbacks for a session that
// is no longer active are ignored.
func (m *Manager) attachPeerLocked(sess *Session, pc core.PeerConnection) {
	sess.pc = pc
	sess.remote = stream.NewRemoteStream(sess.id)
	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { m.onLocalCandidate(sess, c) })
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { m.onConnectionState(sess, s) })
	pc.OnTrack(func(t core.RemoteTrack) { m.onRemoteTrack(sess, t) })
}

func (m *Manager) onLocalCandidate(sess *Session, c webrtc.ICECandidateInit) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	id := sess.id
	m.mu.Unlock()

	if err := m.send(m.ctx, signaling.Candidate{SessionID: id, Candidate: c}); err != nil {
		sess.logger.Warn().Err(err).Msg("trickle local candidate")
	}
}

func (m *Manager) onRemoteTrack(sess *Session, t core.RemoteTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess || sess.remote == nil {
		return
	}
	sess.remote.AddTrack(m.ctx, t)
	m.events.publish(RemoteTrackAdded{
		SessionID: sess.id,
		Track:     stream.TrackInfo{ID: t.ID(), StreamID: t.StreamID(), Kind: t.Kind()},
	})
}

func (m *Manager) onConnectionState(sess *Session, s webrtc.PeerConnectionState) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	prev := sess.pcState
	sess.pcState = s
	sess.logger.Debug().Str("pc_state", s.String()).Msg("peer connection state")

	var out signaling.Message
	switch s {
	case webrtc.PeerConnectionStateConnected:
		stopTimer(&sess.graceTimer)
		sess.restarts = 0
		switch sess.state {
		case domain.CallStateConnecting, domain.CallStateRinging:
			now := m.clock.Now()
			sess.connectedAt = now
			latency := now.Sub(sess.startedAt)
			stopTimer(&sess.ringTimer)
			m.setStateLocked(sess, domain.CallStateConnected)
			m.life.update(sess.log, sess.id, core.CallLogUpdate{Status: domain.CallStatusConnected, ConnectedAt: now})
			m.life.record(core.EventCallConnected, map[string]any{
				"session_id":         string(sess.id),
				"connection_time_ms": latency.Milliseconds(),
			})
		case domain.CallStateConnected:
			if prev == webrtc.PeerConnectionStateDisconnected || prev == webrtc.PeerConnectionStateFailed {
				sess.logger.Info().Msg("connection recovered")
				m.events.publish(Reconnected{SessionID: sess.id})
			}
		}
	case webrtc.PeerConnectionStateDisconnected:
		if sess.state == domain.CallStateConnected && sess.graceTimer == nil {
			sess.logger.Info().Dur("grace", m.opts.DisconnectGrace).Msg("connection lost, waiting for recovery")
			m.events.publish(Reconnecting{SessionID: sess.id})
			m.startGraceTimerLocked(sess)
		}
	case webrtc.PeerConnectionStateFailed:
		if sess.state == domain.CallStateConnected {
			stopTimer(&sess.graceTimer)
			out = m.restartLocked(sess, "failed")
		}
	}
	m.mu.Unlock()

	m.sendRecovery(sess, out)
}

func (m *Manager) startRingTimerLocked(sess *Session) {
	sess.ringGen++
	gen := sess.ringGen
	sess.ringTimer = m.clock.AfterFunc(m.opts.RingTimeout, func() { m.onRingTimeout(sess, gen) })
}

func (m *Manager) onRingTimeout(sess *Session, gen int) {
	m.mu.Lock()
	if m.session != sess || sess.ringGen != gen || sess.ringTimer == nil || sess.state != domain.CallStateRinging {
		m.mu.Unlock()
		return
	}
	sess.ringTimer = nil
	id := sess.id
	sess.logger.Info().Dur("after", m.opts.RingTimeout).Msg("no answer")
	m.finishLocked(sess, domain.CallStatusTimeout, "ring timeout")
	m.mu.Unlock()

	if err := m.send(m.ctx, signaling.Timeout{SessionID: id}); err != nil {
		sess.logger.Warn().Err(err).Msg("send timeout")
	}
}

func (m *Manager) startGraceTimerLocked(sess *Session) {
	sess.graceGen++
	gen := sess.graceGen
	sess.graceTimer = m.clock.AfterFunc(m.opts.DisconnectGrace, func() { m.onGraceExpired(sess, gen) })
}

func (m *Manager) onGraceExpired(sess *Session, gen int) {
	m.mu.Lock()
	if m.session != sess || sess.graceGen != gen || sess.graceTimer == nil {
		m.mu.Unlock()
		return
	}
	sess.graceTimer = nil
	var out signaling.Message
	if sess.pcState == webrtc.PeerConnectionStateDisconnected && sess.state == domain.CallStateConnected {
		out = m.restartLocked(sess, "disconnected")
	}
	m.mu.Unlock()

	m.sendRecovery(sess, out)
}

// restartLocked creates an ICE-restart offer within the same session. Once the
// consecutive restart cap is hit the call is ended instead, and the returned
// message is the end notice for the peer.
func (m *Manager) restartLocked(sess *Session, reason string) signaling.Message {
	if m.opts.MaxICERestarts > 0 && sess.restarts >= m.opts.MaxICERestarts {
		sess.logger.Warn().Int("restarts", sess.restarts).Msg("ice restart limit reached, ending call")
		m.life.record(core.EventCallError, map[string]any{
			"session_id": string(sess.id),
			"stage":      "ice_restart",
			"error":      ErrRestartLimit.Error(),
		})
		m.events.publish(CallFailed{SessionID: sess.id, Err: ErrRestartLimit})
		id := sess.id
		m.finishLocked(sess, domain.CallStatusEnded, "ice restart limit")
		return signaling.End{SessionID: id}
	}

	offer, err := sess.pc.CreateOffer(true)
	if err != nil {
		m.reportLocked(sess, "ice_restart", err)
		return nil
	}
	sess.restarts++
	sess.restartPending = true
	sess.logger.Info().Str("reason", reason).Int("attempt", sess.restarts).Msg("ice restart")
	m.life.record(core.EventICERestart, map[string]any{
		"session_id": string(sess.id),
		"reason":     reason,
		"attempt":    sess.restarts,
	})
	m.events.publish(ICERestarting{SessionID: sess.id, Attempt: sess.restarts})
	return signaling.Restart{SessionID: sess.id, SDP: offer.SDP}
}

func (m *Manager) sendRecovery(sess *Session, msg signaling.Message) {
	if msg == nil {
		return
	}
	if err := m.send(m.ctx, msg); err != nil {
		// the session stays as it is; the next failure tries again
		sess.logger.Error().Err(err).Str("type", string(msg.Type())).Msg("recovery signal failed")
	}
}

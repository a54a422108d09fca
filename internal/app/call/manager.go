// Package call drives one-to-one WebRTC calls: session state, offer/answer
// exchange, ICE candidate ordering, ring and reconnect timers, call logs.
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicecall/internal/app/stream"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/retry"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const retiredSessions = 64

// Manager owns at most one call session for a conversation.
type Manager struct {
	conversation domain.ConversationID
	self, peer   domain.UserID

	transport core.SignalTransport
	peers     core.PeerConnectionFactory
	media     core.MediaSource

	opts   Options
	clock  clockwork.Clock
	life   *lifecycle
	events *broadcaster

	// ctx bounds sends and relays started outside a caller's operation.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *Session
	retired *retiredSet
}

func NewManager(cfg Config) *Manager {
	opts := cfg.Options
	opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		conversation: cfg.Conversation,
		self:         cfg.Self,
		peer:         cfg.Peer,
		transport:    cfg.Transport,
		peers:        cfg.Peers,
		media:        cfg.Media,
		opts:         opts,
		clock:        opts.Clock,
		life:         newLifecycle(cfg.Logs, cfg.Analytics),
		events:       newBroadcaster(opts.EventBuffer),
		ctx:          ctx,
		cancel:       cancel,
		retired:      newRetiredSet(retiredSessions),
	}
}

func (m *Manager) Conversation() domain.ConversationID { return m.conversation }

// State reports the active session's state, idle when there is none.
func (m *Manager) State() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.CallStateIdle
	}
	return m.session.state
}

// SessionID returns the active session id or "".
func (m *Manager) SessionID() domain.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.id
}

func (m *Manager) Session() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return SessionInfo{}, false
	}
	return m.session.info(), true
}

// RemoteStream exposes the inbound media of the active session for attaching sinks.
func (m *Manager) RemoteStream() (*stream.RemoteStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.remote == nil {
		return nil, false
	}
	return m.session.remote, true
}

// Subscribe registers an observer. Slow subscribers lose events rather than stall the manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Cleanup releases the active session, if any, and returns to idle.
// Safe to call repeatedly and from any state.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess := m.session; sess != nil {
		m.releaseLocked(sess)
	}
}

// Close cleans up and stops background work. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.Cleanup()
	m.cancel()
	m.life.close()
	m.events.close()
}

func (m *Manager) participants() []domain.UserID {
	out := make([]domain.UserID, 0, domain.MaxParticipants)
	for _, u := range []domain.UserID{m.self, m.peer} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

func (m *Manager) setStateLocked(sess *Session, to domain.CallState) {
	from := sess.state
	if from == to {
		return
	}
	sess.state = to
	sess.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("call state changed")
	m.events.publish(StateChanged{SessionID: sess.id, From: from, To: to})
}

// releaseLocked tears sess down: timers, local media, peer connection,
// ICE queue, identity and log reference, then idle.
func (m *Manager) releaseLocked(sess *Session) {
	stopTimer(&sess.ringTimer)
	stopTimer(&sess.graceTimer)
	if sess.local != nil {
		sess.local.Stop()
		sess.local = nil
	}
	if sess.pc != nil {
		if err := sess.pc.Close(); err != nil {
			sess.logger.Warn().Err(err).Msg("close peer connection")
		}
		sess.pc = nil
		sess.videoSender = nil
	}
	if sess.remote != nil {
		sess.remote.Close()
		sess.remote = nil
	}
	sess.ice.reset()
	m.retired.add(sess.id)
	sess.log = nil
	if m.session == sess {
		m.session = nil
	}
	m.setStateLocked(sess, domain.CallStateIdle)
}

// finishLocked records the terminal status of sess and releases it.
func (m *Manager) finishLocked(sess *Session, status domain.CallStatus, reason string) {
	now := m.clock.Now()
	m.setStateLocked(sess, domain.CallStateEnded)

	upd := core.CallLogUpdate{Status: status, EndedAt: now}
	duration := 0
	if status == domain.CallStatusEnded && !sess.startedAt.IsZero() {
		duration = int(now.Sub(sess.startedAt).Round(time.Second) / time.Second)
		upd.DurationSeconds = duration
	}
	m.life.update(sess.log, sess.id, upd)
	m.life.record(core.EventCallEnded, map[string]any{
		"session_id":       string(sess.id),
		"status":           string(status),
		"reason":           reason,
		"duration_seconds": duration,
	})
	sess.logger.Info().Str("status", string(status)).Str("reason", reason).Int("duration_s", duration).Msg("call finished")
	m.releaseLocked(sess)
}

// abortLocked drops a session that failed before it got going.
func (m *Manager) abortLocked(sess *Session, stage string, err error) {
	sess.logger.Error().Err(err).Str("stage", stage).Msg("call aborted")
	m.life.record(core.EventCallError, map[string]any{
		"session_id": string(sess.id),
		"stage":      stage,
		"error":      err.Error(),
	})
	m.life.update(sess.log, sess.id, core.CallLogUpdate{Status: domain.CallStatusEnded, EndedAt: m.clock.Now()})
	m.events.publish(CallFailed{SessionID: sess.id, Err: err})
	m.releaseLocked(sess)
}

func (m *Manager) abort(sess *Session, stage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		return
	}
	m.abortLocked(sess, stage, err)
}

// supersedeLocked ends the active session in favour of a new one and tells the peer.
func (m *Manager) supersedeLocked(old *Session) {
	old.logger.Info().Msg("superseding active session")
	if old.engaged() {
		m.sendAsync(signaling.End{SessionID: old.id})
		m.finishLocked(old, domain.CallStatusEnded, "superseded")
		return
	}
	m.sendAsync(signaling.Decline{SessionID: old.id})
	m.finishLocked(old, domain.CallStatusDeclined, "superseded")
}

// send delivers msg under the retry policy.
func (m *Manager) send(ctx context.Context, msg signaling.Message) error {
	err := retry.Do(ctx, m.opts.Retry, func(ctx context.Context) error {
		return m.transport.Send(ctx, m.conversation, msg)
	})
	if err != nil {
		return fmt.Errorf("call: send %s: %w", msg.Type(), err)
	}
	return nil
}

// sendAsync is send for contexts that cannot wait on the peer.
func (m *Manager) sendAsync(msg signaling.Message) {
	go func() {
		if err := m.send(m.ctx, msg); err != nil {
			log.Warn().Str("module", "call").Str("sid", string(msg.Session())).Err(err).Msg("background signal send failed")
		}
	}()
}

package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
)

// ToggleAudio mutes or unmutes the local microphone track in place.
func (m *Manager) ToggleAudio(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.session
	if sess == nil || sess.local == nil {
		return ErrNoActiveCall
	}
	for _, t := range sess.local.AudioTracks() {
		t.SetEnabled(enabled)
	}
	sess.logger.Debug().Bool("enabled", enabled).Msg("audio toggled")
	return nil
}

// ToggleVideo enables or blanks the local camera track in place.
func (m *Manager) ToggleVideo(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.session
	if sess == nil || sess.local == nil {
		return ErrNoActiveCall
	}
	if !sess.callType.HasVideo() {
		return ErrNotVideoCall
	}
	for _, t := range sess.local.VideoTracks() {
		t.SetEnabled(enabled)
	}
	sess.logger.Debug().Bool("enabled", enabled).Msg("video toggled")
	return nil
}

// SwitchCamera captures from the opposite facing camera and replaces the
// outgoing video track without renegotiating.
func (m *Manager) SwitchCamera(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	if sess == nil || sess.local == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if !sess.callType.HasVideo() {
		m.mu.Unlock()
		return ErrNotVideoCall
	}
	if sess.videoSender == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: no outgoing video track", ErrInvalidState)
	}
	facing := sess.facing.Opposite()
	enabled := true
	if cur := sess.local.VideoTracks(); len(cur) > 0 {
		enabled = cur[0].Enabled()
	}
	m.mu.Unlock()

	next, err := m.media.GetUserMedia(ctx, core.MediaConstraints{Video: true, Facing: facing})
	if err != nil {
		return fmt.Errorf("call: switch camera: %w", err)
	}
	tracks := next.VideoTracks()
	if len(tracks) == 0 {
		next.Stop()
		return errors.New("call: switch camera: capture returned no video track")
	}
	track := tracks[0]
	track.SetEnabled(enabled)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess || sess.local == nil || sess.videoSender == nil {
		next.Stop()
		return ErrSuperseded
	}
	if err := sess.videoSender.ReplaceTrack(track); err != nil {
		next.Stop()
		return fmt.Errorf("call: replace video track: %w", err)
	}
	if old := sess.local.SwapVideoTrack(track); old != nil {
		old.Stop()
	}
	sess.facing = facing
	sess.logger.Info().Str("facing", string(facing)).Msg("camera switched")
	return nil
}

// Renegotiate sends a fresh in-session offer, e.g. after local media changed.
func (m *Manager) Renegotiate(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	if sess.state != domain.CallStateConnected || sess.pc == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: renegotiation needs a connected call", ErrInvalidState)
	}
	if sess.restartPending || sess.renegotiating {
		m.mu.Unlock()
		return fmt.Errorf("%w: negotiation already in progress", ErrInvalidState)
	}
	offer, err := sess.pc.CreateOffer(false)
	if err != nil {
		m.reportLocked(sess, "renegotiate", err)
		m.mu.Unlock()
		return fmt.Errorf("call: renegotiate: %w", err)
	}
	sess.renegotiating = true
	id := sess.id
	m.life.record(core.EventRenegotiationInitiated, map[string]any{"session_id": string(id)})
	m.mu.Unlock()

	return m.send(ctx, signaling.Renegotiate{SessionID: id, SDP: offer.SDP})
}

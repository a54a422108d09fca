package signal

import (
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/rs/zerolog/log"
)

// handleRelay validates a call signaling frame and forwards it unchanged
// to the other member of the sender's conversation.
func (ctl *SignalWSController) handleRelay(
	cid core.ClientID,
	conn *WsSignalConn,
	t signaling.Type,
	data []byte,
) {
	if ctl.Limiter != nil && throttled(t) && !ctl.Limiter.Allow(domain.UserID(cid)) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("type", string(t)).Msg("rate limited")
		ctl.sendRefusal(conn, "rate_limited", string(t))
		return
	}

	msg, err := signaling.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("invalid signaling frame")
		ctl.sendRefusal(conn, "bad_signal", string(t))
		return
	}

	res, ok := ctl.Orch.OnFrame(cid, core.Frame(data))
	if !ok {
		ctl.sendRefusal(conn, "not_joined", string(t))
		return
	}
	if res.SendTo == 0 {
		log.Debug().Str("module", "signal").Str("cid", string(cid)).Str("session_id", string(msg.Session())).Msg("no peer to relay to")
		ctl.sendRefusal(conn, "peer_offline", string(t))
	}
}

// throttled reports whether frames of type t count against the sender's rate
// limit. Answers and session-ending frames always pass: the sender has no
// way to learn they were refused and would lose them.
func throttled(t signaling.Type) bool {
	switch t {
	case signaling.TypeOffer, signaling.TypeICE, signaling.TypeICECandidate, signaling.TypeRenegotiate:
		return true
	}
	return false
}

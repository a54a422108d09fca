package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Control frame types understood by the relay besides call signaling.
const (
	typeJoin              = "join"
	typeLeave             = "leave"
	typePing              = "ping"
	typePong              = "pong"
	typeRename            = "rename"
	typeWhoAmI            = "whoami"
	typeLeft              = "left"
	typeError             = "error"
	typeConversationState = "conversation_state"
	typeMemberJoined      = "member_joined"
	typeMemberLeft        = "member_left"
	typeMemberUpdated     = "member_updated"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.settings.PingPeriod > 0 {
		t := time.NewTicker(ctl.settings.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ClientID, sess core.MemberSession, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		c.Close()
		ctl.onDisconnect(cid, sess)
	}()

	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(cid, c, data)
	}
}

func (ctl *SignalWSController) onDisconnect(cid core.ClientID, sess core.MemberSession) {
	id, ok := ctl.Orch.OnDisconnect(cid, sess)
	if _, still := ctl.Orch.Registry.GetSession(cid); !still && ctl.Limiter != nil {
		ctl.Limiter.Forget(sess.Meta().User.ID)
	}
	if !ok {
		return
	}
	ctl.BroadcastConversation(id, memberEvent{Type: typeMemberLeft, User: *sess.Meta().User})
}

func (ctl *SignalWSController) handleSignal(cid core.ClientID, c *WsSignalConn, data []byte) {
	t, err := signaling.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad json")
		ctl.sendError(c, "bad_json")
		return
	}

	switch string(t) {
	case typeJoin:
		ctl.handleJoin(cid, c, data)
	case typeLeave:
		ctl.handleLeave(cid, c)
	case typePing:
		ctl.handlePing(c)
	case typeRename:
		ctl.handleRename(cid, c, data)
	case typeWhoAmI:
		ctl.handleWhoAmI(cid, c)
	default:
		if signaling.IsSignal(t) {
			ctl.handleRelay(cid, c, t, data)
			return
		}
		log.Warn().Str("module", "signal").Str("type", string(t)).Msg("unknown signal")
		ctl.sendError(c, "unknown_type")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

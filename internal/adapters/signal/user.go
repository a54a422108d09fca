package signal

import (
	"encoding/json"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	cid core.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Name == "" {
		ctl.sendError(conn, "empty name")
		return
	}

	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Registry.UpdateUsername(cid, p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(cid, conn)

	user, err := ctl.Orch.Registry.GetOrCreateUser(cid)
	if err != nil {
		return
	}
	ctl.BroadcastFrom(cid, memberEvent{Type: typeMemberUpdated, User: *user})
}

func (ctl *SignalWSController) handleWhoAmI(
	cid core.ClientID,
	conn *WsSignalConn,
) {
	user, err := ctl.Orch.Registry.GetOrCreateUser(cid)
	if err != nil {
		ctl.sendError(conn, "unknown_user")
		return
	}

	resp := struct {
		Type         string                `json:"type"`
		ID           domain.UserID         `json:"id"`
		Username     string                `json:"username"`
		Conversation domain.ConversationID `json:"conversation,omitempty"`
	}{
		Type:     typeWhoAmI,
		ID:       user.ID,
		Username: user.Username,
	}
	if id, _, ok := ctl.Orch.Registry.ConversationOf(cid); ok {
		resp.Conversation = id
	}
	ctl.sendJSON(conn, resp)
}

package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxConversationIDLen = 64

type memberEvent struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type conversationState struct {
	Type         string                `json:"type"`
	Conversation domain.ConversationID `json:"conversation"`
	Members      []core.MemberDTO      `json:"members"`
	Count        int                   `json:"count"`
}

func (ctl *SignalWSController) handleJoin(
	cid core.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type         string `json:"type"`
		Conversation string `json:"conversation"`
		Name         string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Conversation == "" || len(p.Conversation) > maxConversationIDLen {
		ctl.sendError(conn, "bad_conversation")
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(cid, p.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("cid", string(cid)).Str("name", p.Name).Msg("rename on join")
	}

	id := domain.ConversationID(p.Conversation)
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("conversation", p.Conversation).Msg("join")
	hub, err := ctl.Orch.Join(cid, id)
	if err != nil {
		code := "join_failed"
		if errors.Is(err, core.ErrConversationFull) {
			code = "conversation_full"
		}
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("join rejected")
		ctl.sendError(conn, code)
		return
	}

	ctl.sendJSON(conn, conversationState{
		Type:         typeConversationState,
		Conversation: hub.ID(),
		Members:      hub.MembersSnapshot(),
		Count:        hub.MemberCount(),
	})

	user, err := ctl.Orch.Registry.GetOrCreateUser(cid)
	if err != nil {
		return
	}
	ctl.BroadcastFrom(cid, memberEvent{Type: typeMemberJoined, User: *user})
}

// handleLeave exits the current conversation; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	cid core.ClientID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("leave")
	id, ok := ctl.Orch.Leave(cid)
	ctl.sendJSON(conn, map[string]any{"type": typeLeft})
	if !ok {
		return
	}
	user, err := ctl.Orch.Registry.GetOrCreateUser(cid)
	if err != nil {
		return
	}
	ctl.BroadcastConversation(id, memberEvent{Type: typeMemberLeft, User: *user})
}

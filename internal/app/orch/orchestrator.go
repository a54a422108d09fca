package orch

import (
	"github.com/dkeye/voicecall/internal/app"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the client registry to conversation hubs. The relay
// never interprets call state; it only moves frames between the two members.
type Orchestrator struct {
	Registry *app.Registry
	Hubs     core.HubManager
	Policy   app.Policy
}

// Join puts the client into a conversation, leaving its previous one first.
func (o *Orchestrator) Join(cid core.ClientID, id domain.ConversationID) (core.ConversationHub, error) {
	if prev, _, ok := o.Registry.ConversationOf(cid); ok {
		if prev == id {
			hub := o.Hubs.GetOrCreate(id)
			return hub, nil
		}
		o.Leave(cid)
		log.Info().Str("module", "app.orch").Str("cid", string(cid)).Str("from", string(prev)).Msg("left previous conversation")
	}
	session, ok := o.Registry.GetSession(cid)
	if !ok {
		return nil, core.ErrNotConnected
	}
	hub := o.Hubs.GetOrCreate(id)
	if err := hub.AddMember(cid, session); err != nil {
		if hub.MemberCount() == 0 {
			o.Hubs.Stop(id)
		}
		return nil, err
	}
	o.Registry.SetConversation(cid, id)
	log.Info().Str("module", "app.orch").Str("cid", string(cid)).Str("conversation", string(id)).Msg("joined")
	return hub, nil
}

// Leave removes the client from its conversation and drops empty hubs.
func (o *Orchestrator) Leave(cid core.ClientID) (domain.ConversationID, bool) {
	id, _, ok := o.Registry.ConversationOf(cid)
	if !ok {
		return "", false
	}
	if hub, ok := o.Hubs.Get(id); ok {
		hub.RemoveMember(cid)
		if hub.MemberCount() == 0 {
			o.Hubs.Stop(id)
		}
	}
	o.Registry.ClearConversation(cid)
	return id, true
}

// OnFrame relays a signaling frame to the other member of the sender's conversation.
func (o *Orchestrator) OnFrame(cid core.ClientID, data core.Frame) (core.PublishResult, bool) {
	id, _, ok := o.Registry.ConversationOf(cid)
	if !ok {
		return core.PublishResult{}, false
	}
	hub, ok := o.Hubs.Get(id)
	if !ok {
		return core.PublishResult{}, false
	}

	res := hub.Forward(cid, data)
	if o.Policy == nil {
		return res, true
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(hub, slow) {
		case app.KickMember:
			if slowCID, ok := o.Registry.FindBySession(slow); ok {
				log.Warn().Str("module", "app.orch").Str("cid", string(slowCID)).Msg("kicking slow member")
				o.KickByCID(slowCID)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res, true
}

// KickByCID removes the client from its conversation and closes its connection.
func (o *Orchestrator) KickByCID(cid core.ClientID) {
	o.Leave(cid)
	o.Registry.Cancel(cid)
	if sess, ok := o.Registry.GetSession(cid); ok && sess.Signal() != nil {
		sess.Signal().Close()
	}
}

// OnDisconnect cleans up after a closed connection. Returns the conversation
// the client was in so the caller can notify the remaining member.
func (o *Orchestrator) OnDisconnect(cid core.ClientID, sess core.MemberSession) (domain.ConversationID, bool) {
	cur, ok := o.Registry.GetSession(cid)
	if !ok || cur != sess {
		return "", false
	}
	id, left := o.Leave(cid)
	o.Registry.Unbind(cid, sess)
	return id, left
}

// EvictConversation kicks every member and removes the hub.
func (o *Orchestrator) EvictConversation(id domain.ConversationID) {
	for _, snap := range o.Registry.MembersOf(id) {
		o.KickByCID(snap.CID)
	}
	o.Hubs.Stop(id)
}

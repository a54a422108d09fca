package app

import (
	"context"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

type clientEntry struct {
	Conversation domain.ConversationID
	Session      core.MemberSession
	Cancel       context.CancelFunc
}

// Registry tracks every connected client and the conversation it joined.
type Registry struct {
	mu      sync.RWMutex
	clients map[core.ClientID]*clientEntry
	users   map[core.ClientID]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[core.ClientID]*clientEntry),
		users:   make(map[core.ClientID]*domain.User),
	}
}

// GetOrCreateUser returns the user behind a client token. The token is the user id.
func (r *Registry) GetOrCreateUser(cid core.ClientID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[cid]; ok {
		return u, nil
	}
	u, err := domain.NewUserWithID(domain.UserID(cid), "guest")
	if err != nil {
		return nil, err
	}
	r.users[cid] = u
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("created new user")
	return u, nil
}

func (r *Registry) UpdateUsername(cid core.ClientID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[cid]
	if !ok {
		return nil
	}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("username", name).Msg("updated username")
	return nil
}

// BindSignal registers a freshly connected client. A previous connection
// under the same token is canceled.
func (r *Registry) BindSignal(cid core.ClientID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	prev, had := r.clients[cid]
	r.clients[cid] = &clientEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	if had && prev.Cancel != nil {
		prev.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Bool("replaced", had).Msg("bound signal")
}

func (r *Registry) GetSession(cid core.ClientID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.clients[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops the client only if sess is still the bound one, so a late
// disconnect of a replaced connection does not evict its successor.
func (r *Registry) Unbind(cid core.ClientID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[cid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.clients, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbind client")
	return true
}

func (r *Registry) ConversationOf(cid core.ClientID) (domain.ConversationID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[cid]
	if !ok || e.Conversation == "" {
		return "", nil, false
	}
	return e.Conversation, e.Session, true
}

func (r *Registry) SetConversation(cid core.ClientID, id domain.ConversationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[cid]
	if !ok {
		return false
	}
	e.Conversation = id
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("conversation", string(id)).Msg("updated conversation")
	return true
}

func (r *Registry) ClearConversation(cid core.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[cid]; ok {
		e.Conversation = ""
	}
}

type RegSnap struct {
	CID     core.ClientID
	Session core.MemberSession
}

func (r *Registry) MembersOf(id domain.ConversationID) []RegSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegSnap, 0, 2)
	for cid, e := range r.clients {
		if e.Conversation == id {
			out = append(out, RegSnap{CID: cid, Session: e.Session})
		}
	}
	return out
}

// PeersOf returns the other members of the client's conversation.
func (r *Registry) PeersOf(cid core.ClientID) []RegSnap {
	id, _, ok := r.ConversationOf(cid)
	if !ok {
		return nil
	}
	all := r.MembersOf(id)
	out := all[:0]
	for _, s := range all {
		if s.CID != cid {
			out = append(out, s)
		}
	}
	return out
}

// FindBySession maps a member session back to its client id.
func (r *Registry) FindBySession(sess core.MemberSession) (core.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid, e := range r.clients {
		if e.Session == sess {
			return cid, true
		}
	}
	return "", false
}

func (r *Registry) Cancel(cid core.ClientID) bool {
	r.mu.RLock()
	e, ok := r.clients[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled client")
	return true
}

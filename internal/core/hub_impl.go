package core

import (
	"sync"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// hubImpl is a threadsafe in-memory conversation hub.
// It never closes adapter-owned resources.
type hubImpl struct {
	id     domain.ConversationID
	mu     sync.RWMutex
	byCID  map[ClientID]MemberSession
	byUser map[domain.UserID]ClientID
}

func NewConversationHub(id domain.ConversationID) ConversationHub {
	return &hubImpl{
		id:     id,
		byCID:  make(map[ClientID]MemberSession),
		byUser: make(map[domain.UserID]ClientID),
	}
}

func (h *hubImpl) ID() domain.ConversationID { return h.id }

func (h *hubImpl) MemberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byCID)
}

func (h *hubImpl) AddMember(cid ClientID, ms MemberSession) error {
	u := ms.Meta().User.ID
	h.mu.Lock()
	defer h.mu.Unlock()
	// same user reconnecting from a new client replaces the old entry
	if prev, ok := h.byUser[u]; ok && prev != cid {
		delete(h.byCID, prev)
	}
	if _, ok := h.byCID[cid]; !ok && len(h.byCID) >= domain.MaxParticipants {
		return ErrConversationFull
	}
	h.byCID[cid] = ms
	h.byUser[u] = cid
	log.Info().Str("module", "core.hub").Str("conv", string(h.id)).Str("cid", string(cid)).Str("user", string(u)).Msg("member added")
	return nil
}

func (h *hubImpl) RemoveMember(cid ClientID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ms, ok := h.byCID[cid]; ok {
		u := ms.Meta().User.ID
		if h.byUser[u] == cid {
			delete(h.byUser, u)
		}
	}
	delete(h.byCID, cid)
	log.Info().Str("module", "core.hub").Str("conv", string(h.id)).Str("cid", string(cid)).Msg("member removed")
}

func (h *hubImpl) Forward(from ClientID, data Frame) PublishResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for cid, m := range h.byCID {
		if cid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.hub").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("forward result")
	return res
}

func (h *hubImpl) MembersSnapshot() []MemberDTO {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]MemberDTO, 0, len(h.byCID))
	for _, ms := range h.byCID {
		meta := ms.Meta()
		out = append(out, MemberDTO{ID: meta.User.ID, Username: meta.User.Username, ConnectedAt: meta.ConnectedAt})
	}
	return out
}

package app

import (
	"sort"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

type HubManagerImpl struct {
	mu   sync.RWMutex
	hubs map[domain.ConversationID]core.ConversationHub
}

func NewHubManager() core.HubManager {
	return &HubManagerImpl{hubs: make(map[domain.ConversationID]core.ConversationHub)}
}

func (f *HubManagerImpl) GetOrCreate(id domain.ConversationID) core.ConversationHub {
	f.mu.RLock()
	hub, ok := f.hubs[id]
	f.mu.RUnlock()
	if ok {
		return hub
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if hub, ok = f.hubs[id]; ok {
		return hub
	}
	hub = core.NewConversationHub(id)
	f.hubs[id] = hub
	return hub
}

func (f *HubManagerImpl) Get(id domain.ConversationID) (core.ConversationHub, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	hub, ok := f.hubs[id]
	return hub, ok
}

func (f *HubManagerImpl) List() []core.ConversationInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ConversationInfo, 0, len(f.hubs))
	for id, h := range f.hubs {
		out = append(out, core.ConversationInfo{ID: id, MemberCount: h.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *HubManagerImpl) Stop(id domain.ConversationID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hubs, id)
}

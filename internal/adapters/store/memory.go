package store

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/google/uuid"
)

// Memory is a process-local CallLogStore.
type Memory struct {
	mu    sync.RWMutex
	order []core.CallLogID
	logs  map[core.CallLogID]*core.CallLog
}

func NewMemory() *Memory {
	return &Memory{logs: make(map[core.CallLogID]*core.CallLog)}
}

func (s *Memory) CreateLog(_ context.Context, ct domain.CallType, participants []domain.UserID) (core.CallLogID, error) {
	id := core.CallLogID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[id] = &core.CallLog{
		ID:           id,
		CallType:     ct,
		Participants: slices.Clone(participants),
		Status:       domain.CallStatusInitiated,
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *Memory) UpdateLog(_ context.Context, id core.CallLogID, upd core.CallLogUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return ErrNotFound
	}
	apply(l, upd)
	return nil
}

func (s *Memory) Get(_ context.Context, id core.CallLogID) (core.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[id]
	if !ok {
		return core.CallLog{}, ErrNotFound
	}
	out := *l
	out.Participants = slices.Clone(l.Participants)
	return out, nil
}

// Recent returns up to limit logs, newest first.
func (s *Memory) Recent(_ context.Context, limit int) ([]core.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CallLog, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		l := *s.logs[s.order[i]]
		l.Participants = slices.Clone(l.Participants)
		out = append(out, l)
	}
	return out, nil
}

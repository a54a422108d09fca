// Package store persists call logs.
package store

import (
	"errors"

	"github.com/dkeye/voicecall/internal/core"
)

var ErrNotFound = errors.New("store: call log not found")

// apply merges upd into l; zero timestamps keep the stored value.
func apply(l *core.CallLog, upd core.CallLogUpdate) {
	if upd.Status != "" {
		l.Status = upd.Status
	}
	if !upd.StartedAt.IsZero() {
		l.StartedAt = upd.StartedAt
	}
	if !upd.ConnectedAt.IsZero() {
		l.ConnectedAt = upd.ConnectedAt
	}
	if !upd.EndedAt.IsZero() {
		l.EndedAt = upd.EndedAt
	}
	if upd.DurationSeconds > 0 {
		l.DurationSeconds = upd.DurationSeconds
	}
}

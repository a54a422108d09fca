package core

import (
	"context"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
)

type CallLogID string

// CallLogUpdate carries the fields written on a status change. Zero
// timestamps leave the stored value untouched.
type CallLogUpdate struct {
	Status          domain.CallStatus
	StartedAt       time.Time
	ConnectedAt     time.Time
	EndedAt         time.Time
	DurationSeconds int
}

type CallLog struct {
	ID              CallLogID
	CallType        domain.CallType
	Participants    []domain.UserID
	Status          domain.CallStatus
	StartedAt       time.Time
	ConnectedAt     time.Time
	EndedAt         time.Time
	DurationSeconds int
}

// CallLogStore persists call records. Failures never affect call state.
type CallLogStore interface {
	CreateLog(ctx context.Context, callType domain.CallType, participants []domain.UserID) (CallLogID, error)
	UpdateLog(ctx context.Context, id CallLogID, update CallLogUpdate) error
}

type AnalyticsEvent string

const (
	EventCallInitiated          AnalyticsEvent = "call_initiated"
	EventCallConnected          AnalyticsEvent = "call_connected"
	EventCallEnded              AnalyticsEvent = "call_ended"
	EventCallError              AnalyticsEvent = "call_error"
	EventICERestart             AnalyticsEvent = "ice_restart"
	EventRenegotiationInitiated AnalyticsEvent = "renegotiation_initiated"
	EventRenegotiationAnswered  AnalyticsEvent = "renegotiation_answered"
	EventRenegotiationCompleted AnalyticsEvent = "renegotiation_completed"
)

// AnalyticsSink is fire-and-forget.
type AnalyticsSink interface {
	Record(ctx context.Context, event AnalyticsEvent, payload map[string]any)
}

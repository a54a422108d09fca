package core

import (
	"errors"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
)

var (
	ErrConversationFull = errors.New("conversation full")
	ErrNotConnected     = errors.New("client not connected")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID          domain.UserID `json:"id"`
	Username    string        `json:"username"`
	ConnectedAt time.Time     `json:"connected_at"`
}

// ConversationHub is the relay-side membership of one conversation.
// It owns the membership set but never touches transport resources.
type ConversationHub interface {
	ID() domain.ConversationID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember fails with ErrConversationFull once MaxParticipants distinct users joined.
	AddMember(cid ClientID, ms MemberSession) error
	RemoveMember(cid ClientID)
	// Forward delivers data to every member except the sender.
	Forward(from ClientID, data Frame) PublishResult
}

type ConversationInfo struct {
	ID          domain.ConversationID `json:"id"`
	MemberCount int                   `json:"member_count"`
}

type HubManager interface {
	GetOrCreate(id domain.ConversationID) ConversationHub
	Get(id domain.ConversationID) (ConversationHub, bool)
	List() []ConversationInfo
	Stop(id domain.ConversationID)
}

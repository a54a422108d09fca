package call

import (
	"time"

	"github.com/dkeye/voicecall/internal/app/stream"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session is one call attempt. A Manager swaps whole sessions and never
// reuses one for a different session id.
type Session struct {
	id           domain.SessionID
	conversation domain.ConversationID
	callType     domain.CallType
	direction    domain.Direction
	state        domain.CallState
	logger       zerolog.Logger

	startedAt   time.Time
	connectedAt time.Time

	local       core.LocalStream
	remote      *stream.RemoteStream
	pc          core.PeerConnection
	pcState     webrtc.PeerConnectionState
	videoSender core.TrackSender
	facing      core.FacingMode

	ice iceQueue
	log *callLog

	ringTimer  clockwork.Timer
	ringGen    int
	graceTimer clockwork.Timer
	graceGen   int

	// answered: the offer/answer exchange of this session has completed or,
	// for incoming sessions, the user accepted it.
	answered       bool
	restarts       int
	restartPending bool
	renegotiating  bool
}

func newSession(id domain.SessionID, conv domain.ConversationID, ct domain.CallType, dir domain.Direction) *Session {
	return &Session{
		id:           id,
		conversation: conv,
		callType:     ct,
		direction:    dir,
		state:        domain.CallStateIdle,
		facing:       core.FacingUser,
		logger: log.With().
			Str("module", "call").
			Str("conversation", string(conv)).
			Str("sid", string(id)).
			Str("direction", string(dir)).
			Logger(),
	}
}

// engaged reports whether the peer considers the session live.
func (s *Session) engaged() bool {
	return s.direction == domain.DirectionOutgoing || s.answered
}

// SessionInfo is a read-only snapshot of the active session.
type SessionInfo struct {
	ID           domain.SessionID
	Conversation domain.ConversationID
	CallType     domain.CallType
	Direction    domain.Direction
	State        domain.CallState
	StartedAt    time.Time
	ConnectedAt  time.Time
	ICERestarts  int
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:           s.id,
		Conversation: s.conversation,
		CallType:     s.callType,
		Direction:    s.direction,
		State:        s.state,
		StartedAt:    s.startedAt,
		ConnectedAt:  s.connectedAt,
		ICERestarts:  s.restarts,
	}
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// retiredSet remembers recently finished session ids so redelivered
// messages cannot resurrect them.
type retiredSet struct {
	order []domain.SessionID
	ids   map[domain.SessionID]struct{}
	limit int
}

func newRetiredSet(limit int) *retiredSet {
	return &retiredSet{ids: make(map[domain.SessionID]struct{}), limit: limit}
}

func (r *retiredSet) add(id domain.SessionID) {
	if _, ok := r.ids[id]; ok {
		return
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.limit {
		delete(r.ids, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *retiredSet) has(id domain.SessionID) bool {
	_, ok := r.ids[id]
	return ok
}

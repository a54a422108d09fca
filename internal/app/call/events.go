package call

import (
	"sync"

	"github.com/dkeye/voicecall/internal/app/stream"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/rs/zerolog/log"
)

// Event is emitted to subscribers. The set of variants is closed.
type Event interface{ isEvent() }

type StateChanged struct {
	SessionID domain.SessionID
	From, To  domain.CallState
}

// IncomingCall fires once per incoming session; pass Offer to AnswerCall.
type IncomingCall struct {
	SessionID domain.SessionID
	CallType  domain.CallType
	Offer     signaling.Offer
}

type RemoteTrackAdded struct {
	SessionID domain.SessionID
	Track     stream.TrackInfo
}

// Reconnecting marks the start of a disconnect grace period.
type Reconnecting struct{ SessionID domain.SessionID }

type Reconnected struct{ SessionID domain.SessionID }

type ICERestarting struct {
	SessionID domain.SessionID
	Attempt   int
}

// CallFailed means the session was torn down by an error.
type CallFailed struct {
	SessionID domain.SessionID
	Err       error
}

// NegotiationFailed reports a failed in-call negotiation step. The session
// and its state are unchanged.
type NegotiationFailed struct {
	SessionID domain.SessionID
	Stage     string
	Err       error
}

func (StateChanged) isEvent()      {}
func (IncomingCall) isEvent()      {}
func (RemoteTrackAdded) isEvent()  {}
func (Reconnecting) isEvent()      {}
func (Reconnected) isEvent()       {}
func (ICERestarting) isEvent()     {}
func (CallFailed) isEvent()        {}
func (NegotiationFailed) isEvent() {}

// broadcaster fans events out without ever blocking the publisher.
type broadcaster struct {
	size int

	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroadcaster(size int) *broadcaster {
	return &broadcaster{size: size, subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.size)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("module", "call").Int("subscriber", id).Msgf("subscriber full, dropping %T", ev)
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

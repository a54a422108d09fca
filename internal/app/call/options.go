package call

import (
	"errors"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/retry"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrPermissionDenied matches media sources refusing capture.
	ErrPermissionDenied = core.ErrPermissionDenied
	ErrNoActiveCall     = errors.New("call: no active call")
	ErrNotVideoCall     = errors.New("call: not a video call")
	ErrSuperseded       = errors.New("call: session superseded")
	ErrInvalidState     = errors.New("call: invalid state")
	ErrRestartLimit     = errors.New("call: ice restart limit reached")
)

// Options tunes timers and retries of a Manager.
type Options struct {
	RingTimeout     time.Duration
	DisconnectGrace time.Duration
	// MaxICERestarts bounds consecutive restarts that never reach connected.
	// Zero means the default; a negative value disables the cap.
	MaxICERestarts int
	// Retry applies to every outbound message. The zero value means DefaultPolicy.
	Retry retry.Policy
	Clock clockwork.Clock
	// EventBuffer is the per-subscriber channel size.
	EventBuffer int
}

func DefaultOptions() Options {
	return Options{
		RingTimeout:     30 * time.Second,
		DisconnectGrace: 5 * time.Second,
		MaxICERestarts:  3,
		Retry:           retry.DefaultPolicy(),
		EventBuffer:     64,
	}
}

// Config wires a Manager to one conversation and its collaborators.
// Logs and Analytics are optional.
type Config struct {
	Conversation domain.ConversationID
	Self         domain.UserID
	Peer         domain.UserID

	Transport core.SignalTransport
	Peers     core.PeerConnectionFactory
	Media     core.MediaSource
	Logs      core.CallLogStore
	Analytics core.AnalyticsSink

	Options Options
}

func (o *Options) normalize() {
	def := DefaultOptions()
	if o.RingTimeout <= 0 {
		o.RingTimeout = def.RingTimeout
	}
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = def.DisconnectGrace
	}
	if o.MaxICERestarts == 0 {
		o.MaxICERestarts = def.MaxICERestarts
	}
	if o.Retry.MaxRetries == 0 && o.Retry.InitialDelay == 0 {
		clk := o.Retry.Clock
		o.Retry = def.Retry
		o.Retry.Clock = clk
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Retry.Clock == nil {
		o.Retry.Clock = o.Clock
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = def.EventBuffer
	}
}

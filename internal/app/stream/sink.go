package stream

import (
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/core"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Sink is a single consumer of a remote track.
type Sink struct {
	W     core.PacketWriter
	state atomic.Int32
}

func NewSink(w core.PacketWriter) *Sink {
	return &Sink{W: w}
}

func (s *Sink) State() SinkState { return SinkState(s.state.Load()) }

func (s *Sink) MarkOk()     { s.state.Store(int32(SinkStateOk)) }
func (s *Sink) MarkMuted()  { s.state.Store(int32(SinkStateMuted)) }
func (s *Sink) MarkDelete() { s.state.Store(int32(SinkStateDelete)) }

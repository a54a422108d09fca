package stream

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanTrack struct {
	id      string
	packets chan *rtp.Packet
}

func newChanTrack(id string) *chanTrack {
	return &chanTrack{id: id, packets: make(chan *rtp.Packet, 16)}
}

func (t *chanTrack) ID() string                { return t.id }
func (t *chanTrack) StreamID() string          { return "remote" }
func (t *chanTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

func (t *chanTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

type recorder struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (r *recorder) WriteRTP(p *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.seqs = append(r.seqs, p.SequenceNumber)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seqs)
}

func TestRemoteStreamForwardsToSinks(t *testing.T) {
	s := NewRemoteStream("s1")
	defer s.Close()
	track := newChanTrack("a")
	s.AddTrack(t.Context(), track)

	a, b := &recorder{}, &recorder{}
	require.True(t, s.AddSink("a", "speaker", a))
	require.True(t, s.AddSink("a", "recorder", b))
	assert.False(t, s.AddSink("missing", "x", a))

	for i := range 3 {
		track.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}
	}
	assert.Eventually(t, func() bool { return a.count() == 3 && b.count() == 3 }, time.Second, 5*time.Millisecond)

	require.True(t, s.SetSinkMuted("a", "recorder", true))
	track.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 3}}
	assert.Eventually(t, func() bool { return a.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, b.count())

	require.Len(t, s.Tracks(), 1)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, s.Tracks()[0].Kind)
}

func TestRemoteStreamDropsFailingSink(t *testing.T) {
	s := NewRemoteStream("s1")
	defer s.Close()
	track := newChanTrack("a")
	s.AddTrack(t.Context(), track)

	bad := &recorder{err: errors.New("closed")}
	require.True(t, s.AddSink("a", "bad", bad))
	track.packets <- &rtp.Packet{}

	r := s.relays["a"]
	assert.Eventually(t, func() bool {
		_, ok := r.sink("bad")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteStreamCloseIgnoresLateTracks(t *testing.T) {
	s := NewRemoteStream("s1")
	track := newChanTrack("a")
	s.AddTrack(t.Context(), track)
	s.Close()
	s.Close()

	s.AddTrack(t.Context(), newChanTrack("b"))
	assert.Empty(t, s.Tracks())
	close(track.packets)
}

func TestCloseDoesNotWaitForBlockedRead(t *testing.T) {
	s := NewRemoteStream("s1")
	track := newChanTrack("a")
	s.AddTrack(t.Context(), track)
	require.True(t, s.AddSink("a", "speaker", &recorder{}))

	s.mu.Lock()
	r := s.relays["a"]
	s.mu.Unlock()
	sink, ok := r.sink("speaker")
	require.True(t, ok)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a track that is still open")
	}
	assert.Equal(t, SinkStateDelete, sink.State())
	assert.Empty(t, s.Tracks())

	// closing the source ends the read loop
	close(track.packets)
}

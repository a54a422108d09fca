package call

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicecall/internal/adapters/analytics"
	"github.com/dkeye/voicecall/internal/adapters/store"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/signaling"
	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("transport down")

// recordingTransport keeps every delivered message.
type recordingTransport struct {
	mu       sync.Mutex
	sent     []signaling.Message
	attempts int
	fail     error
}

func (r *recordingTransport) Send(_ context.Context, _ domain.ConversationID, msg signaling.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) messages() []signaling.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

func (r *recordingTransport) ofType(t signaling.Type) []signaling.Message {
	var out []signaling.Message
	for _, m := range r.messages() {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingTransport) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

type fakeSender struct {
	mu       sync.Mutex
	replaced []webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, t)
	return nil
}

// fakePC records every call in order and refuses candidates before a
// remote description, like a real peer connection.
type fakePC struct {
	mu            sync.Mutex
	ops           []string
	remoteSet     bool
	closed        bool
	offers        int
	restartOffers int
	senders       []*fakeSender
	early         []string
	srdErr        error

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(core.RemoteTrack)
}

func (p *fakePC) record(op string) {
	p.ops = append(p.ops, op)
}

func (p *fakePC) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.srdErr != nil {
		p.record("srd-failed:" + d.Type.String())
		return p.srdErr
	}
	p.record("srd:" + d.Type.String())
	p.remoteSet = true
	return nil
}

// rejectRemote makes every later SetRemoteDescription fail with err.
func (p *fakePC) rejectRemote(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.srdErr = err
}

func (p *fakePC) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	if iceRestart {
		p.restartOffers++
		p.record("restart-offer")
	} else {
		p.record("offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", p.offers)}, nil
}

func (p *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePC) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("rollback")
	return nil
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remoteSet {
		p.early = append(p.early, c.Candidate)
		return errors.New("remote description not set")
	}
	p.record("ice:" + c.Candidate)
	return nil
}

func (p *fakePC) AddTrack(t webrtc.TrackLocal) (core.TrackSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("track:" + t.Kind().String())
	s := &fakeSender{}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePC) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = f
}

func (p *fakePC) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePC) OnTrack(f func(core.RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = f
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePC) setState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	f(s)
}

func (p *fakePC) gather(candidate string) {
	p.mu.Lock()
	f := p.onICE
	p.mu.Unlock()
	f(webrtc.ICECandidateInit{Candidate: candidate})
}

func (p *fakePC) opList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ops)
}

func (p *fakePC) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePC) restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restartOffers
}

type fakeFactory struct {
	mu  sync.Mutex
	pcs []*fakePC
}

func (f *fakeFactory) NewPeerConnection(context.Context, domain.SessionID) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pcs)
}

func (f *fakeFactory) last() *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcs) == 0 {
		return nil
	}
	return f.pcs[len(f.pcs)-1]
}

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stopped atomic.Bool
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *fakeTrack) ID() string                            { return t.id }
func (t *fakeTrack) RID() string                           { return "" }
func (t *fakeTrack) StreamID() string                      { return "local" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType             { return t.kind }
func (t *fakeTrack) SetEnabled(v bool)                     { t.enabled.Store(v) }
func (t *fakeTrack) Enabled() bool                         { return t.enabled.Load() }
func (t *fakeTrack) Stop()                                 { t.stopped.Store(true) }

type fakeStream struct {
	mu    sync.Mutex
	audio []core.LocalTrack
	video []core.LocalTrack
}

func (s *fakeStream) AudioTracks() []core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audio)
}

func (s *fakeStream) VideoTracks() []core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.video)
}

func (s *fakeStream) SwapVideoTrack(t core.LocalTrack) core.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old core.LocalTrack
	if len(s.video) > 0 {
		old = s.video[0]
		s.video[0] = t
	} else {
		s.video = []core.LocalTrack{t}
	}
	return old
}

func (s *fakeStream) Stop() {
	for _, t := range append(s.AudioTracks(), s.VideoTracks()...) {
		t.Stop()
	}
}

type fakeMedia struct {
	mu       sync.Mutex
	deny     bool
	requests []core.MediaConstraints
	tracks   []*fakeTrack
	gate     chan struct{}
}

func (f *fakeMedia) GetUserMedia(ctx context.Context, c core.MediaConstraints) (core.LocalStream, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.deny {
		return nil, fmt.Errorf("camera: %w", core.ErrPermissionDenied)
	}
	s := &fakeStream{}
	n := len(f.requests)
	if c.Audio {
		t := newFakeTrack(fmt.Sprintf("audio-%d", n), webrtc.RTPCodecTypeAudio)
		f.tracks = append(f.tracks, t)
		s.audio = append(s.audio, t)
	}
	if c.Video {
		t := newFakeTrack(fmt.Sprintf("video-%d-%s", n, c.Facing), webrtc.RTPCodecTypeVideo)
		f.tracks = append(f.tracks, t)
		s.video = append(s.video, t)
	}
	return s, nil
}

func (f *fakeMedia) allTracks() []*fakeTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tracks)
}

func (f *fakeMedia) lastRequest() core.MediaConstraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
	BlockUntil(int)
}

type harness struct {
	t         *testing.T
	m         *Manager
	clock     fakeClock
	transport *recordingTransport
	peers     *fakeFactory
	media     *fakeMedia
	logs      *store.Memory
	analytics *analytics.Memory
	events    <-chan Event
}

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	fc := clockwork.NewFakeClock()
	h := &harness{
		t:         t,
		clock:     fc,
		transport: &recordingTransport{},
		peers:     &fakeFactory{},
		media:     &fakeMedia{},
		logs:      store.NewMemory(),
		analytics: analytics.NewMemory(),
	}
	opts := Options{Clock: fc}
	for _, f := range tweak {
		f(&opts)
	}
	h.m = NewManager(Config{
		Conversation: "conv-1",
		Self:         "alice",
		Peer:         "bob",
		Transport:    h.transport,
		Peers:        h.peers,
		Media:        h.media,
		Logs:         h.logs,
		Analytics:    h.analytics,
		Options:      opts,
	})
	h.events, _ = h.m.Subscribe()
	t.Cleanup(h.m.Close)
	return h
}

// drain returns the events published so far.
func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (h *harness) states() []domain.CallState {
	var out []domain.CallState
	for _, ev := range h.drain() {
		if sc, ok := ev.(StateChanged); ok {
			out = append(out, sc.To)
		}
	}
	return out
}

// connectOutgoing places a voice call and drives it to connected.
func (h *harness) connectOutgoing(ct domain.CallType) (domain.SessionID, *fakePC) {
	h.t.Helper()
	require.NoError(h.t, h.m.StartCall(context.Background(), ct))
	sid := h.m.SessionID()
	h.m.HandleSignalingMessage(context.Background(), signaling.Answer{SessionID: sid, SDP: "remote-answer"})
	pc := h.peers.last()
	pc.setState(webrtc.PeerConnectionStateConnected)
	require.Equal(h.t, domain.CallStateConnected, h.m.State())
	return sid, pc
}

// connectIncoming receives and answers an offer, then drives it to connected.
func (h *harness) connectIncoming(sid domain.SessionID) *fakePC {
	h.t.Helper()
	offer := signaling.Offer{SessionID: sid, SDP: "remote-offer", CallType: domain.CallTypeVoice}
	h.m.HandleSignalingMessage(context.Background(), offer)
	require.NoError(h.t, h.m.AnswerCall(context.Background(), offer, domain.CallTypeVoice))
	pc := h.peers.last()
	pc.setState(webrtc.PeerConnectionStateConnected)
	require.Equal(h.t, domain.CallStateConnected, h.m.State())
	return pc
}

func (h *harness) latestLog() (core.CallLog, bool) {
	logs, _ := h.logs.Recent(context.Background(), 1)
	if len(logs) == 0 {
		return core.CallLog{}, false
	}
	return logs[0], true
}

func (h *harness) logStatusIs(status domain.CallStatus) func() bool {
	return func() bool {
		l, ok := h.latestLog()
		return ok && l.Status == status
	}
}

package signaling

import (
	"testing"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariants(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "offer",
			in:   `{"type":"offer","sessionId":"s1","sdp":"v=0","callType":"video"}`,
			want: Offer{SessionID: "s1", SDP: "v=0", CallType: domain.CallTypeVideo},
		},
		{
			name: "offer without call type defaults to voice",
			in:   `{"type":"offer","sessionId":"s1","sdp":"v=0"}`,
			want: Offer{SessionID: "s1", SDP: "v=0", CallType: domain.CallTypeVoice},
		},
		{
			name: "legacy ice",
			in:   `{"type":"ice","sessionId":"s1","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`,
			want: Candidate{SessionID: "s1", Candidate: webrtc.ICECandidateInit{
				Candidate:     "candidate:1 1 udp 1 10.0.0.1 5000 typ host",
				SDPMid:        &mid,
				SDPMLineIndex: &idx,
			}},
		},
		{
			name: "restart",
			in:   `{"type":"restart","sessionId":"s1","sdp":"v=0"}`,
			want: Restart{SessionID: "s1", SDP: "v=0"},
		},
		{
			name: "renegotiate answer",
			in:   `{"type":"renegotiate-answer","sessionId":"s1","sdp":"v=0"}`,
			want: RenegotiateAnswer{SessionID: "s1", SDP: "v=0"},
		},
		{
			name: "end",
			in:   `{"type":"end","sessionId":"s1"}`,
			want: End{SessionID: "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		err  error
	}{
		{"unknown type", `{"type":"hello","sessionId":"s1"}`, ErrUnknownType},
		{"missing type", `{"sessionId":"s1"}`, ErrUnknownType},
		{"not json", `{"type":`, ErrMalformed},
		{"missing session", `{"type":"end"}`, ErrMalformed},
		{"offer without sdp", `{"type":"offer","sessionId":"s1"}`, ErrMalformed},
		{"offer with bad call type", `{"type":"offer","sessionId":"s1","sdp":"v=0","callType":"fax"}`, ErrMalformed},
		{"candidate without payload", `{"type":"ice-candidate","sessionId":"s1"}`, ErrMalformed},
		{"answer without sdp", `{"type":"answer","sessionId":"s1"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.in))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEncodeCandidateUsesIceCandidateType(t *testing.T) {
	data, err := Encode(Candidate{SessionID: "s1", Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1"}})
	require.NoError(t, err)

	typ, err := PeekType(data)
	require.NoError(t, err)
	assert.Equal(t, TypeICECandidate, typ)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s1"), back.Session())
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDescription(t *testing.T) {
	desc, ok := Description(Restart{SessionID: "s1", SDP: "v=0"})
	require.True(t, ok)
	assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)

	desc, ok = Description(Answer{SessionID: "s1", SDP: "v=1"})
	require.True(t, ok)
	assert.Equal(t, webrtc.SDPTypeAnswer, desc.Type)

	_, ok = Description(End{SessionID: "s1"})
	assert.False(t, ok)
}

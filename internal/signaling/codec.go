package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrUnknownType = errors.New("signaling: unknown message type")
	ErrMalformed   = errors.New("signaling: malformed message")
)

type wireMessage struct {
	Type      Type                     `json:"type"`
	SessionID domain.SessionID         `json:"sessionId"`
	SDP       string                   `json:"sdp,omitempty"`
	CallType  domain.CallType          `json:"callType,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// PeekType reads only the "type" field of a frame.
func PeekType(data []byte) (Type, error) {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env.Type, nil
}

// Encode serializes m. Candidates always go out as "ice-candidate".
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	w := wireMessage{Type: m.Type(), SessionID: m.Session()}
	switch v := m.(type) {
	case Offer:
		w.SDP = v.SDP
		w.CallType = v.CallType
	case Answer:
		w.SDP = v.SDP
	case Restart:
		w.SDP = v.SDP
	case Renegotiate:
		w.SDP = v.SDP
	case RenegotiateAnswer:
		w.SDP = v.SDP
	case Candidate:
		c := v.Candidate
		w.Candidate = &c
	}
	return json.Marshal(w)
}

// Decode parses one frame. Unknown variants and frames missing their
// type-specific payload are rejected rather than passed through.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !IsSignal(w.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	if w.SessionID == "" {
		return nil, fmt.Errorf("%w: %s without sessionId", ErrMalformed, w.Type)
	}

	switch w.Type {
	case TypeOffer:
		if err := requireSDP(w); err != nil {
			return nil, err
		}
		ct := w.CallType
		if ct == "" {
			ct = domain.CallTypeVoice
		}
		parsed, err := domain.ParseCallType(string(ct))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Offer{SessionID: w.SessionID, SDP: w.SDP, CallType: parsed}, nil
	case TypeAnswer:
		if err := requireSDP(w); err != nil {
			return nil, err
		}
		return Answer{SessionID: w.SessionID, SDP: w.SDP}, nil
	case TypeRestart:
		if err := requireSDP(w); err != nil {
			return nil, err
		}
		return Restart{SessionID: w.SessionID, SDP: w.SDP}, nil
	case TypeRenegotiate:
		if err := requireSDP(w); err != nil {
			return nil, err
		}
		return Renegotiate{SessionID: w.SessionID, SDP: w.SDP}, nil
	case TypeRenegotiateAnswer:
		if err := requireSDP(w); err != nil {
			return nil, err
		}
		return RenegotiateAnswer{SessionID: w.SessionID, SDP: w.SDP}, nil
	case TypeICE, TypeICECandidate:
		if w.Candidate == nil || w.Candidate.Candidate == "" {
			return nil, fmt.Errorf("%w: %s without candidate", ErrMalformed, w.Type)
		}
		return Candidate{SessionID: w.SessionID, Candidate: *w.Candidate}, nil
	case TypeTimeout:
		return Timeout{SessionID: w.SessionID}, nil
	case TypeEnd:
		return End{SessionID: w.SessionID}, nil
	case TypeDecline:
		return Decline{SessionID: w.SessionID}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
}

func requireSDP(w wireMessage) error {
	if w.SDP == "" {
		return fmt.Errorf("%w: %s without sdp", ErrMalformed, w.Type)
	}
	return nil
}

package call

import (
	"errors"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/webrtc/v4"
)

// iceQueue holds remote candidates until the remote description is applied.
type iceQueue struct {
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

func (q *iceQueue) push(c webrtc.ICECandidateInit) {
	q.pending = append(q.pending, c)
}

// take hands the queued candidates over, leaving the queue empty.
func (q *iceQueue) take() []webrtc.ICECandidateInit {
	out := q.pending
	q.pending = nil
	return out
}

// open marks the remote description as set and drains the queue into pc in
// arrival order. A failing candidate does not stop the rest.
func (q *iceQueue) open(pc core.PeerConnection) (int, error) {
	q.remoteSet = true
	var errs []error
	pending := q.take()
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return len(pending), errors.Join(errs...)
}

func (q *iceQueue) reset() {
	q.pending = nil
	q.remoteSet = false
}

package md

import (
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// TimeoutResult is one outcome of ProcessTimeouts: either a frame to
// retransmit, or a session that failed.
type TimeoutResult struct {
	Session *Session
	Retry   []byte // non-nil: retransmit this frame
	Failed  bool   // true: session has been flagged morituri and its callback fired
}

// ProcessTimeouts runs spec.md §4.4's retry/timeout rule over every
// session whose deadline has passed. Retries apply only when the
// transport is UDP, at most one replier is expected (unicast), and
// num_retries < num_retries_max; otherwise expiry is fatal. Called once
// per scheduler tick (spec.md §4.6 C6 step 3).
func (t *Table) ProcessTimeouts(now time.Time, tcpSessionIDs map[packet.SessionID]bool) []TimeoutResult {
	var results []TimeoutResult
	for _, s := range t.Sessions() {
		s.mu.Lock()
		due := !s.Deadline.IsZero() && !now.Before(s.Deadline) && !s.morituri
		state := s.State
		s.mu.Unlock()
		if !due {
			continue
		}
		if state != StateTxRequestW4Reply && state != StateTxReqW4ApConfirm && state != StateRxReqW4ApReply && state != StateRxReplyQueryW4C {
			continue
		}

		isTCP := tcpSessionIDs[s.ID]
		canRetry := state == StateTxRequestW4Reply && !isTCP && s.NumExpectedReplies <= 1

		s.mu.Lock()
		if canRetry && s.NumRetries < s.NumRetriesMax {
			s.NumRetries++
			s.Deadline = s.Deadline.Add(s.Interval)
			seq := s.seq + 1
			s.seq = seq
			frame := s.Buffer
			if frame != nil {
				packet.UpdateMDPacket(frame, seq)
			}
			s.mu.Unlock()
			results = append(results, TimeoutResult{Session: s, Retry: frame})
			continue
		}
		s.mu.Unlock()

		s.markMorituri()
		if s.Callback != nil {
			s.Callback(s, nil, trdp.ErrTimeout)
		}
		results = append(results, TimeoutResult{Session: s, Failed: true})
	}
	return results
}

package md

// dupAction is the outcome of the ordered duplicate-request check of
// spec.md §4.4.
type dupAction int

const (
	dupNone       dupAction = iota // no matching session id: not a duplicate
	dupDiscard                     // discard the incoming frame silently
	dupFallthrough                 // ignore the match, fall through to listener search
	dupRetransmit                  // resend the previously-queued reply
)

// checkDuplicate applies the six ordered rules of spec.md §4.4 against
// an existing receive-side session entry matched by session ID.
func checkDuplicate(existing *Session, seq uint32, tcp, multicast, replyAlreadySent, topoChanged bool) dupAction {
	switch {
	case existing.lastSeq() == seq:
		return dupDiscard // rule 1: same session id and same sequence counter
	case tcp:
		return dupDiscard // rule 2: TCP is ordered, a retransmit can't happen
	case multicast:
		return dupDiscard // rule 3: multicast has no single-peer retransmit semantics
	case !replyAlreadySent:
		return dupDiscard // rule 4: reply not yet sent, request is still being serviced
	case topoChanged:
		return dupFallthrough // rule 5: topology moved on, treat as a fresh request
	default:
		return dupRetransmit // rule 6
	}
}

func (s *Session) lastSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

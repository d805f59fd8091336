package room

import (
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

// pairKey identifies a peer link independent of message direction.
type pairKey struct{ a, b string }

func newPairKey(x, y string) pairKey {
	if x < y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

// peerLink tracks negotiation progress for one pair. Round is a per-pair
// monotonically increasing counter bundled with each message; answers and
// candidates of a superseded round are dropped.
type peerLink struct {
	status model.PeerLinkStatus
	round  uint64
}

// Negotiate relays a connection-negotiation message to its target without
// inspecting the media payload. If the target is not an active member the
// message is dropped silently and the pair's link is marked failed; the UI
// detects that independently and offers reconnection.
func (r *Room) Negotiate(fromID string, msg model.NegotiatePayload) error {
	var opErr error
	err := r.do(func() {
		if r.findMember(fromID) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		key := newPairKey(fromID, msg.ToID)
		link := r.links[key]
		if link == nil {
			link = &peerLink{}
			r.links[key] = link
		}

		target := r.findMember(msg.ToID)
		if target == nil || target.p.State != model.StateActive || target.out == nil {
			link.status = model.LinkFailed
			opErr = errs.ErrSignalTargetUnreachable
			r.log.Debug("signal target unreachable",
				zap.String("from", fromID), zap.String("to", msg.ToID))
			return
		}

		switch msg.Kind {
		case model.NegotiationOffer:
			// Renegotiation: a fresh offer resets the pair, overwriting any
			// prior terminal status. Offers behind the current round are
			// themselves stale.
			if msg.Round < link.round {
				return
			}
			link.round = msg.Round
			link.status = model.LinkOffered
		case model.NegotiationAnswer:
			if msg.Round != link.round {
				return
			}
			link.status = model.LinkAnswered
		case model.NegotiationCandidate:
			if msg.Round != link.round {
				return
			}
			if link.status == model.LinkAnswered {
				link.status = model.LinkConnected
			}
		default:
			r.log.Warn("unknown negotiation kind", zap.String("kind", string(msg.Kind)))
			return
		}

		relay := msg
		relay.FromID = fromID
		relay.ToID = ""
		frame, encErr := model.EncodeEvent(model.EventSignalNegotiate, relay)
		if encErr != nil {
			r.log.Error("encode negotiate relay failed", zap.Error(encErr))
			return
		}
		target.out(frame)
	})
	if err != nil {
		return err
	}
	return opErr
}

// LinkStatus reports the negotiation status for a pair.
func (r *Room) LinkStatus(x, y string) (model.PeerLinkStatus, bool) {
	var (
		status model.PeerLinkStatus
		ok     bool
	)
	_ = r.do(func() {
		if link := r.links[newPairKey(x, y)]; link != nil {
			status, ok = link.status, true
		}
	})
	return status, ok
}

package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

func negotiations(t *testing.T, c *collector) []model.NegotiatePayload {
	t.Helper()
	var msgs []model.NegotiatePayload
	for _, raw := range c.events(t, model.EventSignalNegotiate) {
		var m model.NegotiatePayload
		require.NoError(t, json.Unmarshal(raw, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func offer(to string, round uint64) model.NegotiatePayload {
	return model.NegotiatePayload{
		ToID: to, Kind: model.NegotiationOffer, Round: round,
		Payload: json.RawMessage(`{"sdp":"o"}`),
	}
}

func TestNegotiateRelaysToTargetOnly(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1, c2, c3 := &collector{}, &collector{}, &collector{}
	for id, c := range map[string]*collector{"p1": c1, "p2": c2, "p3": c3} {
		_, err := rm.Join(participant(id), c.out)
		require.NoError(t, err)
	}

	require.NoError(t, rm.Negotiate("p1", offer("p2", 1)))

	got := negotiations(t, c2)
	require.Len(t, got, 1)
	// The coordinator stamps the sender and strips the routing target.
	assert.Equal(t, "p1", got[0].FromID)
	assert.Empty(t, got[0].ToID)
	assert.JSONEq(t, `{"sdp":"o"}`, string(got[0].Payload))

	// Nobody else sees the exchange, the sender included.
	assert.Empty(t, negotiations(t, c1))
	assert.Empty(t, negotiations(t, c3))

	status, ok := rm.LinkStatus("p1", "p2")
	require.True(t, ok)
	assert.Equal(t, model.LinkOffered, status)
}

func TestNegotiateUnreachableTargetMarksLinkFailed(t *testing.T) {
	// Scenario: the target never joined. The message is dropped, the link is
	// marked failed, and the sender gets no relayed frame back.
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1 := &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)

	err = rm.Negotiate("p1", offer("ghost", 1))
	assert.ErrorIs(t, err, errs.ErrSignalTargetUnreachable)
	assert.Empty(t, negotiations(t, c1))

	status, ok := rm.LinkStatus("p1", "ghost")
	require.True(t, ok)
	assert.Equal(t, model.LinkFailed, status)
}

func TestNegotiateDisconnectedTargetUnreachable(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1, c2 := &collector{}, &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)
	att2, err := rm.Join(participant("p2"), c2.out)
	require.NoError(t, err)

	rm.MarkDisconnected(att2)

	err = rm.Negotiate("p1", offer("p2", 1))
	assert.ErrorIs(t, err, errs.ErrSignalTargetUnreachable)
	assert.Empty(t, negotiations(t, c2))
}

func TestNegotiateFromNonMemberRejected(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1 := &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)

	err = rm.Negotiate("stranger", offer("p1", 1))
	assert.ErrorIs(t, err, errs.ErrNotAMember)
	assert.Empty(t, negotiations(t, c1))
}

func TestNegotiateStaleRoundDropped(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1, c2 := &collector{}, &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)
	_, err = rm.Join(participant("p2"), c2.out)
	require.NoError(t, err)

	require.NoError(t, rm.Negotiate("p1", offer("p2", 2)))

	// An answer carrying a superseded round is silently discarded.
	require.NoError(t, rm.Negotiate("p2", model.NegotiatePayload{
		ToID: "p1", Kind: model.NegotiationAnswer, Round: 1,
		Payload: json.RawMessage(`{"sdp":"a"}`),
	}))
	assert.Empty(t, negotiations(t, c1))

	status, _ := rm.LinkStatus("p1", "p2")
	assert.Equal(t, model.LinkOffered, status)

	// The matching-round answer goes through.
	require.NoError(t, rm.Negotiate("p2", model.NegotiatePayload{
		ToID: "p1", Kind: model.NegotiationAnswer, Round: 2,
		Payload: json.RawMessage(`{"sdp":"a"}`),
	}))
	assert.Len(t, negotiations(t, c1), 1)

	status, _ = rm.LinkStatus("p1", "p2")
	assert.Equal(t, model.LinkAnswered, status)
}

func TestNegotiateFullHandshakeReachesConnected(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1, c2 := &collector{}, &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)
	_, err = rm.Join(participant("p2"), c2.out)
	require.NoError(t, err)

	require.NoError(t, rm.Negotiate("p1", offer("p2", 1)))
	require.NoError(t, rm.Negotiate("p2", model.NegotiatePayload{
		ToID: "p1", Kind: model.NegotiationAnswer, Round: 1,
		Payload: json.RawMessage(`{"sdp":"a"}`),
	}))
	require.NoError(t, rm.Negotiate("p1", model.NegotiatePayload{
		ToID: "p2", Kind: model.NegotiationCandidate, Round: 1,
		Payload: json.RawMessage(`{"candidate":"c"}`),
	}))

	status, ok := rm.LinkStatus("p1", "p2")
	require.True(t, ok)
	assert.Equal(t, model.LinkConnected, status)
}

func TestNegotiateFreshOfferResetsFailedLink(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, _ := reg.GetOrCreate("room-1", model.RoomKindPeer)
	c1 := &collector{}
	_, err := rm.Join(participant("p1"), c1.out)
	require.NoError(t, err)

	// First attempt fails: target absent.
	err = rm.Negotiate("p1", offer("p2", 1))
	assert.ErrorIs(t, err, errs.ErrSignalTargetUnreachable)

	// Target joins; a renegotiation offer at a higher round revives the pair.
	c2 := &collector{}
	_, err = rm.Join(participant("p2"), c2.out)
	require.NoError(t, err)
	require.NoError(t, rm.Negotiate("p1", offer("p2", 2)))

	status, _ := rm.LinkStatus("p1", "p2")
	assert.Equal(t, model.LinkOffered, status)
	assert.Len(t, negotiations(t, c2), 1)
}

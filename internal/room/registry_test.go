package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	reg := newTestRegistry(t, nil)

	r1, err := reg.GetOrCreate("s1", model.RoomKindPeer)
	require.NoError(t, err)
	r2, err := reg.GetOrCreate("s1", model.RoomKindPeer)
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	// Once the room exists, kind may be omitted.
	r3, err := reg.GetOrCreate("s1", "")
	require.NoError(t, err)
	assert.Same(t, r1, r3)
}

func TestGetOrCreateRequiresKindOnFirstUse(t *testing.T) {
	reg := newTestRegistry(t, nil)
	_, err := reg.GetOrCreate("unknown", "")
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)

	_, err = reg.Get("unknown")
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
}

func TestReleaseDiscardsState(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rm, err := reg.GetOrCreate("s1", model.RoomKindPeer)
	require.NoError(t, err)
	_, err = rm.Join(participant("p1"), (&collector{}).out)
	require.NoError(t, err)

	reg.Release("s1")
	assert.Equal(t, 0, reg.Len())

	// Release is a no-op for unknown ids.
	reg.Release("never-existed")

	// A fresh GetOrCreate yields a brand new coordinator with empty state.
	rm2, err := reg.GetOrCreate("s1", model.RoomKindPeer)
	require.NoError(t, err)
	assert.NotSame(t, rm, rm2)
	assert.Equal(t, 0, rm2.MemberCount())
}

func TestSessionEndCallbackOnEmpty(t *testing.T) {
	reg := newTestRegistry(t, nil)
	reports := make(chan model.SessionReport, 1)
	reg.SetOnSessionEnd(func(rep model.SessionReport) { reports <- rep })

	rm, _ := reg.GetOrCreate("s1", model.RoomKindPeer)
	_, err := rm.Join(participant("p1"), (&collector{}).out)
	require.NoError(t, err)
	require.NoError(t, rm.PostMessage("p1", "solo note"))
	require.NoError(t, rm.Leave("p1"))

	select {
	case rep := <-reports:
		assert.Equal(t, "s1", rep.SessionID)
		assert.Equal(t, 1, rep.ChatMessages)
		assert.Equal(t, model.RoomKindPeer, rep.Kind)
	case <-time.After(time.Second):
		t.Fatal("no session report after room emptied")
	}
	assert.Equal(t, 0, reg.Len())
}

func TestRoomsAreIndependent(t *testing.T) {
	reg := newTestRegistry(t, nil)
	a, _ := reg.GetOrCreate("a", model.RoomKindPeer)
	b, _ := reg.GetOrCreate("b", model.RoomKindPeer)

	ca, cb := &collector{}, &collector{}
	_, err := a.Join(participant("p1"), ca.out)
	require.NoError(t, err)
	_, err = b.Join(participant("p1"), cb.out)
	require.NoError(t, err)

	require.NoError(t, a.PostMessage("p1", "only in a"))
	assert.Len(t, ca.chatTexts(t), 1)
	assert.Empty(t, cb.chatTexts(t))
}

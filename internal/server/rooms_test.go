package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory() (*RoomDirectory, *Registry) {
	reg := NewRegistry()
	return NewRoomDirectory(reg), reg
}

func registered(reg *Registry, identity string) *Client {
	c := newTestClient()
	reg.Register(c)
	reg.SetIdentity(c, identity)
	return c
}

func TestJoinCreatesRoomAndSyncsSession(t *testing.T) {
	dir, reg := newTestDirectory()
	c := registered(reg, "ana")

	dir.Join(c, "ana", "r1")

	assert.Equal(t, []string{"ana"}, dir.MembersOf("r1"))
	state, _ := reg.Get(c)
	assert.Equal(t, "r1", state.Room)
}

func TestJoinSwitchesRoomAtomically(t *testing.T) {
	dir, reg := newTestDirectory()
	c := registered(reg, "ana")

	dir.Join(c, "ana", "a")
	dir.Join(c, "ana", "b")

	assert.Empty(t, dir.MembersOf("a"), "old room must not retain the member")
	assert.Equal(t, []string{"ana"}, dir.MembersOf("b"))
	state, _ := reg.Get(c)
	assert.Equal(t, "b", state.Room)
}

func TestLeaveClearsSessionAndPrunesEmptyRoom(t *testing.T) {
	dir, reg := newTestDirectory()
	c := registered(reg, "ana")
	dir.Join(c, "ana", "r1")

	dir.Leave(c, "ana", false)

	assert.Empty(t, dir.MembersOf("r1"))
	assert.Empty(t, dir.RoomOf(c))
	state, _ := reg.Get(c)
	assert.Empty(t, state.Room)
}

func TestLeaveNotifiesRemainingMembersBeforeRemoval(t *testing.T) {
	dir, reg := newTestDirectory()
	leaving := registered(reg, "ana")
	staying := registered(reg, "test")
	dir.Join(leaving, "ana", "r1")
	dir.Join(staying, "test", "r1")

	var sawRoom string
	var membersAtNotify []string
	dir.onDepart = func(room, identity string, _ *Client) {
		sawRoom = room
		// The directory still holds the leaving member at notify time.
		for _, member := range dir.rooms[room] {
			membersAtNotify = append(membersAtNotify, member)
		}
	}

	dir.Leave(leaving, "ana", true)

	assert.Equal(t, "r1", sawRoom)
	assert.Len(t, membersAtNotify, 2)
	assert.Equal(t, []string{"test"}, dir.MembersOf("r1"))
}

func TestLeaveWithoutRoomIsNoOp(t *testing.T) {
	dir, reg := newTestDirectory()
	c := registered(reg, "ana")

	notified := false
	dir.onDepart = func(string, string, *Client) { notified = true }
	dir.Leave(c, "ana", true)

	assert.False(t, notified)
}

func TestCleanupForIdentityCoversAllConnections(t *testing.T) {
	dir, reg := newTestDirectory()
	first := registered(reg, "ana")
	second := registered(reg, "ana")
	other := registered(reg, "test")
	dir.Join(first, "ana", "r1")
	dir.Join(second, "ana", "r2")
	dir.Join(other, "test", "r2")

	dir.CleanupForIdentity("ana")

	assert.Empty(t, dir.MembersOf("r1"))
	assert.NotContains(t, dir.MembersOf("r2"), "ana")
	assert.Contains(t, dir.MembersOf("r2"), "test")

	for _, c := range []*Client{first, second} {
		state, ok := reg.Get(c)
		require.True(t, ok)
		assert.Empty(t, state.Room, "session room must be cleared for every cleaned connection")
	}
}

func TestMembersOfUnknownRoomIsEmpty(t *testing.T) {
	dir, _ := newTestDirectory()
	assert.Empty(t, dir.MembersOf("never-joined"))
}

func TestMembersOfDeduplicatesSharedIdentity(t *testing.T) {
	dir, reg := newTestDirectory()
	first := registered(reg, "ana")
	second := registered(reg, "ana")
	dir.Join(first, "ana", "r1")
	dir.Join(second, "ana", "r1")

	assert.Equal(t, []string{"ana"}, dir.MembersOf("r1"))
}

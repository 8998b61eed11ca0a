package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "chat_3_7", RoomKey(3, 7))
	assert.Equal(t, "chat_3_7", RoomKey(7, 3))
	assert.Equal(t, RoomKey(42, 9), RoomKey(9, 42))
}

func TestRoomRouterJoinIsIdempotent(t *testing.T) {
	rooms := NewRoomRouter()

	rooms.Join(1, "chat_1_2")
	rooms.Join(1, "chat_1_2")
	rooms.Join(2, "chat_1_2")

	assert.ElementsMatch(t, []uint{1, 2}, rooms.Members("chat_1_2"))
}

func TestRoomRouterLeaveDropsEmptyRooms(t *testing.T) {
	rooms := NewRoomRouter()

	rooms.Join(1, "chat_1_2")
	rooms.Leave(1, "chat_1_2")
	// Leaving a room twice, or one never joined, is harmless.
	rooms.Leave(1, "chat_1_2")
	rooms.Leave(1, "chat_9_9")

	assert.Empty(t, rooms.Members("chat_1_2"))
	assert.False(t, rooms.Contains("chat_1_2", 1))
}

func TestRoomRouterLeaveAll(t *testing.T) {
	rooms := NewRoomRouter()

	rooms.Join(1, "chat_1_2")
	rooms.Join(1, "chat_1_3")
	rooms.Join(2, "chat_1_2")

	rooms.LeaveAll(1)

	assert.ElementsMatch(t, []uint{2}, rooms.Members("chat_1_2"))
	assert.Empty(t, rooms.Members("chat_1_3"))
}

func TestRoomRouterMembershipSurvivesAcrossRooms(t *testing.T) {
	rooms := NewRoomRouter()

	rooms.Join(1, "chat_1_2")
	rooms.Join(1, "chat_1_3")

	assert.True(t, rooms.Contains("chat_1_2", 1))
	assert.True(t, rooms.Contains("chat_1_3", 1))
}

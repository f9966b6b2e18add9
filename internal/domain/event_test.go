package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeValid(t *testing.T) {
	for _, et := range []EventType{
		EventGameInvitation, EventInvitationResponse, EventInvitationCancelled,
		EventCallInvitation, EventCallDeclined, EventCallCancelled,
	} {
		assert.True(t, et.Valid(), et)
	}
	assert.False(t, EventType("game_started").Valid())
	assert.False(t, EventType("").Valid())
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(EventCallInvitation, CallInvitation{Caller: "alice", RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, EventCallInvitation, ev.Type)
	assert.JSONEq(t, `{"caller":"alice","room_id":"r1"}`, string(ev.Payload))

	ev, err = NewEvent(EventCallDeclined, CallDeclined{Decliner: "bob", RoomID: "r1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"decliner":"bob","room_id":"r1"}`, string(ev.Payload))

	_, err = NewEvent("bogus", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = NewEvent(EventGameInvitation, make(chan int))
	assert.Error(t, err)
}

func TestInvitationResponseShape(t *testing.T) {
	raw, err := json.Marshal(InvitationResponse{
		Invitation: json.RawMessage(`{"id":5}`),
		Action:     ActionDecline,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"invitation":{"id":5},"action":"decline"}`, string(raw))
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type EventType string

const (
	EventGameInvitation      EventType = "game_invitation"
	EventInvitationResponse  EventType = "invitation_response"
	EventInvitationCancelled EventType = "invitation_cancelled"
	EventCallInvitation      EventType = "call_invitation"
	EventCallDeclined        EventType = "call_declined"
	EventCallCancelled       EventType = "call_cancelled"
)

var ErrUnknownEvent = errors.New("unknown event type")

func (t EventType) Valid() bool {
	switch t {
	case EventGameInvitation, EventInvitationResponse, EventInvitationCancelled,
		EventCallInvitation, EventCallDeclined, EventCallCancelled:
		return true
	}
	return false
}

// NotificationEvent is produced by the application layer and consumed the
// same way by the socket path and the broker path.
type NotificationEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(t EventType, payload any) (NotificationEvent, error) {
	if !t.Valid() {
		return NotificationEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, t)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return NotificationEvent{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return NotificationEvent{Type: t, Payload: raw}, nil
}

type InvitationAction string

const (
	ActionAccept  InvitationAction = "accept"
	ActionDecline InvitationAction = "decline"
)

// InvitationResponse is the payload of invitation_response. The invitation
// itself is whatever the invitation service serialized.
type InvitationResponse struct {
	Invitation json.RawMessage  `json:"invitation"`
	Action     InvitationAction `json:"action"`
}

type CallInvitation struct {
	Caller        string `json:"caller"`
	RoomID        RoomID `json:"room_id"`
	CallerPicture string `json:"caller_picture,omitempty"`
}

type CallDeclined struct {
	Decliner string `json:"decliner"`
	RoomID   RoomID `json:"room_id"`
}

type CallCancelled struct {
	Caller string `json:"caller"`
	RoomID RoomID `json:"room_id"`
}

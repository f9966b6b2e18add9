// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 150
)

var (
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// Identity is who sits behind a socket. Zero UserID means anonymous.
type Identity struct {
	UserID   UserID `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	// GuestID labels anonymous participants in logs only.
	GuestID string `json:"guest_id,omitempty"`
}

func Anonymous(guestID string) Identity {
	return Identity{GuestID: guestID}
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, username string) (Identity, error) {
	if len(id) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	if len(username) > MaxUsernameLen {
		return Identity{}, ErrUsernameTooLong
	}
	return Identity{UserID: id, Username: username}, nil
}

func (i Identity) IsAnonymous() bool { return i.UserID == "" }

// Label is what goes into log lines.
func (i Identity) Label() string {
	switch {
	case !i.IsAnonymous() && i.Username != "":
		return i.Username
	case !i.IsAnonymous():
		return string(i.UserID)
	case i.GuestID != "":
		return "guest:" + i.GuestID
	default:
		return "anonymous"
	}
}

func NewGuestID() string {
	return uuid.NewString()
}

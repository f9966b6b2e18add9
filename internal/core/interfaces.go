package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/ChessSignal/internal/domain"
)

// Frame is a raw text payload written to a socket.
type Frame []byte

// ConnID identifies one accepted socket. Unique per connection, not per user.
type ConnID string

var (
	ErrClosed      = errors.New("connection closed")
	ErrUnknownUser = errors.New("unknown user")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Envelope is what travels through a group. Payload is opaque to the layer.
type Envelope struct {
	Type    string          `json:"type"`
	Sender  ConnID          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Member is a group participant as the broadcast layer sees it.
type Member interface {
	ID() ConnID
	// Deliver must not block. An error means the member could not keep up.
	Deliver(Envelope) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []Member
}

type GroupInfo struct {
	Name        domain.GroupName `json:"name"`
	MemberCount int              `json:"member_count"`
}

// GroupLayer is the join/leave/broadcast contract shared by the single-node
// registry and the broker-backed one.
type GroupLayer interface {
	Join(ctx context.Context, group domain.GroupName, m Member) error
	Leave(ctx context.Context, group domain.GroupName, id ConnID) error
	Broadcast(ctx context.Context, group domain.GroupName, env Envelope, exclude ConnID) error
	Members(ctx context.Context, group domain.GroupName) ([]ConnID, error)
	Groups(ctx context.Context) ([]GroupInfo, error)
}

// Presence records which call room an authenticated user is in.
type Presence interface {
	SetRoom(ctx context.Context, user domain.UserID, room domain.RoomID) error
	// Clear marks the user offline, but only if room is still the one recorded.
	Clear(ctx context.Context, user domain.UserID, room domain.RoomID) error
}

// UserDirectory resolves a user id to its public identity.
type UserDirectory interface {
	Lookup(ctx context.Context, id domain.UserID) (domain.Identity, error)
}

// Publisher is the out-of-socket notification path. Best effort: it reports
// success but never returns an error to the caller.
type Publisher interface {
	Publish(ctx context.Context, username string, eventType domain.EventType, payload json.RawMessage) bool
}

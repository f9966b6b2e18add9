package app

import (
	"errors"

	"github.com/dkeye/ChessSignal/internal/core"
)

// State is where a consumer is in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	}
	return "unknown"
}

// SignalingMessage is the envelope type of relayed call signaling.
const SignalingMessage = "signaling_message"

var (
	ErrAnonymous        = errors.New("authentication required")
	ErrAlreadyConnected = errors.New("consumer already connected")
	ErrClosed           = core.ErrClosed
)

// RateLimiter caps inbound messages per connection.
type RateLimiter interface {
	Allow(id core.ConnID) bool
	Forget(id core.ConnID)
}

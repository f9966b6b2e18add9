package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// Deps are shared by every consumer; they are injected, never global.
type Deps struct {
	Groups   core.GroupLayer
	Presence core.Presence // optional
	Limiter  RateLimiter   // optional
	Stats    *Stats
}

// SignalingConsumer relays opaque call signaling between the sockets of one
// room. Anonymous participants are allowed.
type SignalingConsumer struct {
	id    core.ConnID
	room  domain.RoomID
	group domain.GroupName
	ident domain.Identity
	out   core.SignalConnection
	deps  Deps

	state       atomic.Int32
	closed      atomic.Bool
	presenceSet atomic.Bool
	once        sync.Once
}

var _ core.Member = (*SignalingConsumer)(nil)

func NewSignalingConsumer(id core.ConnID, room domain.RoomID, ident domain.Identity, out core.SignalConnection, deps Deps) *SignalingConsumer {
	if deps.Stats == nil {
		deps.Stats = &Stats{}
	}
	return &SignalingConsumer{
		id:    id,
		room:  room,
		group: domain.CallGroup(room),
		ident: ident,
		out:   out,
		deps:  deps,
	}
}

func (c *SignalingConsumer) ID() core.ConnID         { return c.id }
func (c *SignalingConsumer) Group() domain.GroupName { return c.group }
func (c *SignalingConsumer) State() State            { return State(c.state.Load()) }

// Connect joins the room group and records presence. On error the caller
// must reject the handshake and still call Disconnect.
func (c *SignalingConsumer) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	if err := c.deps.Groups.Join(ctx, c.group, c); err != nil {
		return fmt.Errorf("join %s: %w", c.group, err)
	}
	if !c.ident.IsAnonymous() && c.deps.Presence != nil {
		if err := c.deps.Presence.SetRoom(ctx, c.ident.UserID, c.room); err != nil {
			return fmt.Errorf("presence for %s: %w", c.ident.UserID, err)
		}
		c.presenceSet.Store(true)
	}
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined)) {
		return ErrClosed
	}
	log.Info().Str("module", "app.signaling").Str("conn", string(c.id)).Str("room", string(c.room)).Str("who", c.ident.Label()).Msg("joined call room")
	return nil
}

// Receive relays one client message to the rest of the room. Anything that
// is not well-formed JSON is dropped without telling the client.
func (c *SignalingConsumer) Receive(ctx context.Context, data []byte) {
	if c.State() != StateJoined {
		return
	}
	if c.deps.Limiter != nil && !c.deps.Limiter.Allow(c.id) {
		c.deps.Stats.RateLimited.Add(1)
		log.Debug().Str("module", "app.signaling").Str("conn", string(c.id)).Msg("rate limited, dropped")
		return
	}
	if !json.Valid(data) {
		c.deps.Stats.Malformed.Add(1)
		log.Debug().Str("module", "app.signaling").Str("conn", string(c.id)).Int("bytes", len(data)).Msg("malformed json, dropped")
		return
	}
	env := core.Envelope{
		Type:    SignalingMessage,
		Sender:  c.id,
		Payload: json.RawMessage(data),
	}
	if err := c.deps.Groups.Broadcast(ctx, c.group, env, c.id); err != nil {
		log.Warn().Err(err).Str("module", "app.signaling").Str("group", string(c.group)).Msg("broadcast")
		return
	}
	c.deps.Stats.Relayed.Add(1)
}

// Deliver forwards the inner message of a room broadcast verbatim.
func (c *SignalingConsumer) Deliver(env core.Envelope) error {
	if env.Sender == c.id {
		return nil
	}
	if env.Type != SignalingMessage {
		log.Debug().Str("module", "app.signaling").Str("conn", string(c.id)).Str("type", env.Type).Msg("ignored envelope")
		return nil
	}
	return c.out.TrySend(core.Frame(env.Payload))
}

func (c *SignalingConsumer) Close() { c.out.Close() }

// Disconnect runs once whatever state the consumer reached.
func (c *SignalingConsumer) Disconnect(ctx context.Context) {
	c.once.Do(func() {
		c.closed.Store(true)
		prev := State(c.state.Swap(int32(StateDisconnected)))
		if err := c.deps.Groups.Leave(ctx, c.group, c.id); err != nil {
			log.Warn().Err(err).Str("module", "app.signaling").Str("group", string(c.group)).Str("conn", string(c.id)).Msg("leave")
		}
		if c.presenceSet.Load() {
			if err := c.deps.Presence.Clear(ctx, c.ident.UserID, c.room); err != nil {
				log.Warn().Err(err).Str("module", "app.signaling").Str("user", string(c.ident.UserID)).Msg("clear presence")
			}
		}
		if c.deps.Limiter != nil {
			c.deps.Limiter.Forget(c.id)
		}
		log.Info().Str("module", "app.signaling").Str("conn", string(c.id)).Str("room", string(c.room)).Str("from_state", prev.String()).Msg("disconnected")
	})
}

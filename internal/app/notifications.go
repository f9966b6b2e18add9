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

// NotificationConsumer pushes typed events to one authenticated user. It is
// push-only: client payloads are ignored.
type NotificationConsumer struct {
	id    core.ConnID
	ident domain.Identity
	group domain.GroupName
	out   core.SignalConnection
	deps  Deps

	state  atomic.Int32
	closed atomic.Bool
	once   sync.Once
}

var _ core.Member = (*NotificationConsumer)(nil)

func NewNotificationConsumer(id core.ConnID, ident domain.Identity, out core.SignalConnection, deps Deps) *NotificationConsumer {
	if deps.Stats == nil {
		deps.Stats = &Stats{}
	}
	c := &NotificationConsumer{
		id:    id,
		ident: ident,
		out:   out,
		deps:  deps,
	}
	if !ident.IsAnonymous() {
		c.group = domain.UserGroup(ident.UserID)
	}
	return c
}

func (c *NotificationConsumer) ID() core.ConnID         { return c.id }
func (c *NotificationConsumer) Group() domain.GroupName { return c.group }
func (c *NotificationConsumer) State() State            { return State(c.state.Load()) }

// Connect rejects anonymous identities, then joins user_{id}.
func (c *NotificationConsumer) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateAuthenticating)) {
		return ErrAlreadyConnected
	}
	if c.ident.IsAnonymous() {
		return ErrAnonymous
	}
	if err := c.deps.Groups.Join(ctx, c.group, c); err != nil {
		return fmt.Errorf("join %s: %w", c.group, err)
	}
	if !c.state.CompareAndSwap(int32(StateAuthenticating), int32(StateJoined)) {
		return ErrClosed
	}
	log.Info().Str("module", "app.notifications").Str("conn", string(c.id)).Str("user", string(c.ident.UserID)).Msg("subscribed")
	return nil
}

func (c *NotificationConsumer) Receive(_ context.Context, data []byte) {
	log.Debug().Str("module", "app.notifications").Str("conn", string(c.id)).Int("bytes", len(data)).Msg("ignored client payload")
}

func (c *NotificationConsumer) Deliver(env core.Envelope) error {
	if env.Sender != "" && env.Sender == c.id {
		return nil
	}
	frame, err := NotificationFrame(env)
	if err != nil {
		// A bad event must not be mistaken for a slow client.
		log.Error().Err(err).Str("module", "app.notifications").Str("conn", string(c.id)).Str("type", env.Type).Msg("encode notification")
		return nil
	}
	return c.out.TrySend(frame)
}

func (c *NotificationConsumer) Close() { c.out.Close() }

func (c *NotificationConsumer) Disconnect(ctx context.Context) {
	c.once.Do(func() {
		c.closed.Store(true)
		prev := State(c.state.Swap(int32(StateDisconnected)))
		if c.group != "" {
			if err := c.deps.Groups.Leave(ctx, c.group, c.id); err != nil {
				log.Warn().Err(err).Str("module", "app.notifications").Str("group", string(c.group)).Str("conn", string(c.id)).Msg("leave")
			}
		}
		log.Info().Str("module", "app.notifications").Str("conn", string(c.id)).Str("from_state", prev.String()).Msg("disconnected")
	})
}

type notificationFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NotificationFrame renders an event envelope the way the notification
// socket speaks: {"type": ..., "data": ...}.
func NotificationFrame(env core.Envelope) (core.Frame, error) {
	data := env.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if domain.EventType(env.Type) == domain.EventInvitationResponse {
		var r domain.InvitationResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("invitation_response payload: %w", err)
		}
		if len(r.Invitation) == 0 {
			r.Invitation = json.RawMessage("null")
		}
		projected, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		data = projected
	}
	return json.Marshal(notificationFrame{Type: env.Type, Data: data})
}

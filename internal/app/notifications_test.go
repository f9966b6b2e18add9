package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRejectsAnonymous(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	c := NewNotificationConsumer("n1", domain.Anonymous("g1"), &fakeConn{}, Deps{Groups: reg})

	require.ErrorIs(t, c.Connect(ctx), ErrAnonymous)
	c.Disconnect(ctx)

	assert.Equal(t, domain.GroupName(""), c.Group())
	assert.Zero(t, reg.Len())
}

func TestNotificationJoinsUserGroup(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	user := domain.Identity{UserID: "7", Username: "alice"}
	c := NewNotificationConsumer("n1", user, &fakeConn{}, Deps{Groups: reg})

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, StateJoined, c.State())
	ids, err := reg.Members(ctx, "user_7")
	require.NoError(t, err)
	assert.Equal(t, []core.ConnID{"n1"}, ids)

	c.Disconnect(ctx)
	ids, err = reg.Members(ctx, "user_7")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNotificationIgnoresClientPayloads(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	conn := &fakeConn{}
	c := NewNotificationConsumer("n1", domain.Identity{UserID: "7"}, conn, Deps{Groups: reg})
	require.NoError(t, c.Connect(ctx))

	c.Receive(ctx, []byte(`{"type":"game_invitation"}`))
	assert.Empty(t, conn.Frames())
}

func TestNotificationFrame(t *testing.T) {
	tests := []struct {
		name string
		env  core.Envelope
		want string
	}{
		{
			name: "call invitation",
			env:  core.Envelope{Type: "call_invitation", Payload: []byte(`{"caller":"alice","room_id":"r1"}`)},
			want: `{"type":"call_invitation","data":{"caller":"alice","room_id":"r1"}}`,
		},
		{
			name: "empty payload",
			env:  core.Envelope{Type: "invitation_cancelled"},
			want: `{"type":"invitation_cancelled","data":null}`,
		},
		{
			name: "invitation response keeps invitation and action only",
			env: core.Envelope{
				Type:    "invitation_response",
				Payload: []byte(`{"invitation":{"id":5,"status":"declined"},"action":"decline","extra":true}`),
			},
			want: `{"type":"invitation_response","data":{"invitation":{"id":5,"status":"declined"},"action":"decline"}}`,
		},
		{
			name: "invitation response without invitation",
			env:  core.Envelope{Type: "invitation_response", Payload: []byte(`{"action":"accept"}`)},
			want: `{"type":"invitation_response","data":{"invitation":null,"action":"accept"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := NotificationFrame(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(frame))
		})
	}

	_, err := NotificationFrame(core.Envelope{Type: "invitation_response", Payload: []byte(`[1,2]`)})
	assert.Error(t, err)
}

func TestNotificationDeliverBadEventIsNotBackpressure(t *testing.T) {
	conn := &fakeConn{}
	c := NewNotificationConsumer("n1", domain.Identity{UserID: "7"}, conn, Deps{Groups: NewRegistry(nil, nil)})

	err := c.Deliver(core.Envelope{Type: "invitation_response", Payload: json.RawMessage(`"oops"`)})
	assert.NoError(t, err)
	assert.Empty(t, conn.Frames())
}

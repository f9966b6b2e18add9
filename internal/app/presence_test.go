package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	_, ok := p.Get("7")
	assert.False(t, ok)

	require.NoError(t, p.SetRoom(ctx, "7", "r1"))
	e, ok := p.Get("7")
	require.True(t, ok)
	assert.Equal(t, PresenceEntry{Online: true, Room: "r1", LastSeen: now}, e)

	// Moving to another room, then leaving the old one, keeps the new room.
	require.NoError(t, p.SetRoom(ctx, "7", "r2"))
	require.NoError(t, p.Clear(ctx, "7", "r1"))
	e, _ = p.Get("7")
	assert.True(t, e.Online)
	assert.Equal(t, "r2", string(e.Room))

	now = now.Add(time.Minute)
	require.NoError(t, p.Clear(ctx, "7", "r2"))
	e, _ = p.Get("7")
	assert.Equal(t, PresenceEntry{Online: false, LastSeen: now}, e)

	require.NoError(t, p.Clear(ctx, "unknown", "r1"))
}

package redisgroups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/ChessSignal/internal/app"
	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(f))
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// startNode runs one server node against the shared Redis.
func startNode(t *testing.T, ctx context.Context, addr string) *Layer {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	layer := New(rdb, "test", app.NewRegistry(nil, nil))
	go func() { _ = layer.Run(ctx) }()
	select {
	case <-layer.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}
	return layer
}

func TestLayerBroadcastAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node1 := startNode(t, ctx, mr.Addr())
	node2 := startNode(t, ctx, mr.Addr())

	connA, connB, connC := &recorder{}, &recorder{}, &recorder{}
	a := app.NewSignalingConsumer("a", "r1", domain.Identity{}, connA, app.Deps{Groups: node1})
	b := app.NewSignalingConsumer("b", "r1", domain.Identity{}, connB, app.Deps{Groups: node2})
	c := app.NewSignalingConsumer("c", "r2", domain.Identity{}, connC, app.Deps{Groups: node2})
	for _, cons := range []interface{ Connect(context.Context) error }{a, b, c} {
		require.NoError(t, cons.Connect(ctx))
	}

	a.Receive(ctx, []byte(`{"type":"offer"}`))

	require.Eventually(t, func() bool { return len(connB.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"offer"}`, connB.Frames()[0])
	assert.Empty(t, connA.Frames())
	assert.Empty(t, connC.Frames())

	ids, err := node2.Members(ctx, domain.CallGroup("r1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ConnID{"a", "b"}, ids)

	groups, err := node1.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.GroupInfo{
		{Name: "call_r1", MemberCount: 2},
		{Name: "call_r2", MemberCount: 1},
	}, groups)
}

func TestLayerLeaveCleansUp(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	node := startNode(t, ctx, mr.Addr())

	user := domain.Identity{UserID: "7", Username: "alice"}
	conn := &recorder{}
	n := app.NewNotificationConsumer("n1", user, conn, app.Deps{Groups: node})
	require.NoError(t, n.Connect(ctx))
	assert.True(t, mr.Exists("test:members:user_7"))

	n.Disconnect(ctx)
	assert.False(t, mr.Exists("test:members:user_7"))

	groups, err := node.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestLayerNotifierReachesRemoteSocket(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := startNode(t, ctx, mr.Addr())
	ws := startNode(t, ctx, mr.Addr())

	conn := &recorder{}
	n := app.NewNotificationConsumer("n1", domain.Identity{UserID: "7"}, conn, app.Deps{Groups: ws})
	require.NoError(t, n.Connect(ctx))

	ev, err := domain.NewEvent(domain.EventCallDeclined, domain.CallDeclined{Decliner: "bob", RoomID: "r1"})
	require.NoError(t, err)
	require.NoError(t, app.NewNotifier(api, nil, nil, nil).Notify(ctx, domain.Identity{UserID: "7"}, ev))

	require.Eventually(t, func() bool { return len(conn.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"call_declined","data":{"decliner":"bob","room_id":"r1"}}`, conn.Frames()[0])
}

func TestLayerDispatchIgnoresGarbage(t *testing.T) {
	reg := app.NewRegistry(nil, nil)
	l := New(nil, "", reg)
	assert.NotPanics(t, func() { l.dispatch("{not json") })
	assert.Equal(t, "chess:members:call_x", l.membersKey("call_x"))
	assert.Equal(t, "chess:group:call_x", l.channel("call_x"))
}

func TestLayerReadyGatesFirstBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	layer := New(rdb, "test", app.NewRegistry(nil, nil))

	select {
	case <-layer.Ready():
		t.Fatal("ready before subscribing")
	default:
	}

	go func() { _ = layer.Run(ctx) }()
	select {
	case <-layer.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	conn := &recorder{}
	n := app.NewNotificationConsumer("n1", domain.Identity{UserID: "7"}, conn, app.Deps{Groups: layer})
	require.NoError(t, n.Connect(ctx))
	require.NoError(t, layer.Broadcast(ctx, "user_7", core.Envelope{Type: "game_invitation", Payload: []byte(`{"id":1}`)}, ""))

	require.Eventually(t, func() bool { return len(conn.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

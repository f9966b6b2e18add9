package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/ChessSignal/internal/app"
	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

// IdentityResolver turns handshake metadata into an identity. It never
// rejects; the consumer decides what an anonymous identity may do.
type IdentityResolver interface {
	Resolve(r *http.Request) domain.Identity
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Deps     app.Deps
	Resolver IdentityResolver
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(deps app.Deps, resolver IdentityResolver, opts Options) *SignalWSController {
	if deps.Stats == nil {
		deps.Stats = &app.Stats{}
	}
	return &SignalWSController{
		Deps:     deps,
		Resolver: resolver,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WsSignalConn is the outbound half of a socket. It exists before the
// upgrade so the consumer can join its group first; frames queued meanwhile
// are flushed once the socket is attached.
type WsSignalConn struct {
	send chan core.Frame

	mu     sync.RWMutex
	ws     *websocket.Conn
	closed bool
}

func NewWsSignalConn(buffer int) *WsSignalConn {
	return &WsSignalConn{send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

func (c *WsSignalConn) attach(ws *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = ws.Close()
		return core.ErrClosed
	}
	c.ws = ws
	return nil
}

type consumer interface {
	core.Member
	Connect(ctx context.Context) error
	Receive(ctx context.Context, data []byte)
	Disconnect(ctx context.Context)
}

// HandleCall serves ws/call/{room_id}/.
func (ctl *SignalWSController) HandleCall(ctx context.Context, c *gin.Context) {
	room, err := domain.ParseRoomID(c.Param("room_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ident := ctl.identity(c)
	conn := NewWsSignalConn(ctl.opts.SendBuffer)
	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(room)).Str("who", ident.Label()).Msg("call connection attempt")

	ctl.serve(ctx, c, conn, app.NewSignalingConsumer(id, room, ident, conn, ctl.Deps))
}

// HandleNotifications serves ws/notifications/.
func (ctl *SignalWSController) HandleNotifications(ctx context.Context, c *gin.Context) {
	ident := ctl.identity(c)
	conn := NewWsSignalConn(ctl.opts.SendBuffer)
	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("who", ident.Label()).Msg("notification connection attempt")

	ctl.serve(ctx, c, conn, app.NewNotificationConsumer(id, ident, conn, ctl.Deps))
}

func (ctl *SignalWSController) identity(c *gin.Context) domain.Identity {
	ident := ctl.Resolver.Resolve(c.Request)
	if ident.IsAnonymous() {
		ident.GuestID = c.GetString(GuestKey)
	}
	return ident
}

// GuestKey is the gin context key the guest middleware stores its id under.
const GuestKey = "guest_id"

func (ctl *SignalWSController) serve(ctx context.Context, c *gin.Context, conn *WsSignalConn, cons consumer) {
	if err := cons.Connect(c.Request.Context()); err != nil {
		disconnect(ctx, cons)
		conn.Close()
		ctl.Deps.Stats.Rejected.Add(1)
		status := http.StatusForbidden
		if errors.Is(err, app.ErrAnonymous) {
			status = http.StatusUnauthorized
		}
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cons.ID())).Int("status", status).Msg("handshake rejected")
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	// Response headers carry the guest session cookie, if any.
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cons.ID())).Msg("ws upgrade")
		disconnect(ctx, cons)
		conn.Close()
		return
	}
	if err := conn.attach(ws); err != nil {
		disconnect(ctx, cons)
		return
	}
	ctl.Deps.Stats.Accepted.Add(1)

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, ws, conn)
	go ctl.readPump(connCtx, cancel, ws, conn, cons)
}

// disconnect outlives server shutdown long enough for the leave to land.
func disconnect(ctx context.Context, cons consumer) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	cons.Disconnect(cctx)
}

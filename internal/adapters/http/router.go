package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkeye/ChessSignal/internal/adapters/signal"
	"github.com/dkeye/ChessSignal/internal/app"
	"github.com/dkeye/ChessSignal/internal/config"
	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Server struct {
	Cfg      *config.Config
	Signal   *signal.SignalWSController
	Groups   core.GroupLayer
	Notifier *app.Notifier
	Stats    *app.Stats
	// Presence is only set when presence is kept in memory.
	Presence *app.MemoryPresence
}

type notifyRequest struct {
	UserID   string           `json:"user_id" binding:"required,max=64"`
	Username string           `json:"username" binding:"max=150"`
	Type     domain.EventType `json:"type" binding:"required"`
	Payload  json.RawMessage  `json:"payload"`
}

func SetupRouter(ctx context.Context, s Server) *gin.Engine {
	switch s.Cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if s.Cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(s.Cfg.Secret))
	r.Use(sessions.Sessions("ChessSessions", store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ws := r.Group("/ws")
	call := func(c *gin.Context) { s.Signal.HandleCall(ctx, c) }
	ws.GET("/call/:room_id/", GuestMiddleware(), call)
	ws.GET("/call/:room_id", GuestMiddleware(), call)
	notifications := func(c *gin.Context) { s.Signal.HandleNotifications(ctx, c) }
	ws.GET("/notifications/", notifications)
	ws.GET("/notifications", notifications)

	api := r.Group("/api", ServerKey(s.Cfg.ServerKey))

	// POST /api/notify: the application layer reports an invitation or call change
	api.POST("/notify", func(c *gin.Context) {
		var req notifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ev := domain.NotificationEvent{Type: req.Type, Payload: req.Payload}
		target := domain.Identity{UserID: domain.UserID(req.UserID), Username: req.Username}
		if err := s.Notifier.Notify(c.Request.Context(), target, ev); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrUnknownEvent) || errors.Is(err, app.ErrNoTarget) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "group": domain.UserGroup(target.UserID)})
	})

	// GET /api/groups lists live groups with member counts
	api.GET("/groups", func(c *gin.Context) {
		groups, err := s.Groups.Groups(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list groups")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
	})

	// GET /api/groups/:name
	api.GET("/groups/:name", func(c *gin.Context) {
		name := domain.GroupName(c.Param("name"))
		members, err := s.Groups.Members(c.Request.Context(), name)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("group", string(name)).Msg("group members")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if members == nil {
			members = []core.ConnID{}
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "members": members, "count": len(members)})
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats.Snapshot())
	})

	if s.Presence != nil {
		api.GET("/presence/:user_id", func(c *gin.Context) {
			entry, ok := s.Presence.Get(domain.UserID(c.Param("user_id")))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "no presence recorded"})
				return
			}
			c.JSON(http.StatusOK, entry)
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", s.Cfg.Mode).Msg("router setup")
	return r
}

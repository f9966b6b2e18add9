package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/dkeye/ChessSignal/internal/adapters/signal"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const guestSessionKey = "guest_id"

// GuestMiddleware gives every browser a stable guest id so anonymous call
// participants can be told apart in logs.
func GuestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get(guestSessionKey).(string)
		if id == "" {
			id = domain.NewGuestID()
			s.Set(guestSessionKey, id)
			_ = s.Save()
		}
		c.Set(signal.GuestKey, id)
		c.Next()
	}
}

// ServerKey guards the internal API. An empty expected key disables it.
func ServerKey(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Server-Key")
		if expectedKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid server key"})
			return
		}
		c.Next()
	}
}

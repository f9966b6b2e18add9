package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
)

type PresenceEntry struct {
	Online   bool          `json:"is_online"`
	Room     domain.RoomID `json:"current_room,omitempty"`
	LastSeen time.Time     `json:"last_seen"`
}

// MemoryPresence keeps presence in process memory.
type MemoryPresence struct {
	mu      sync.RWMutex
	entries map[domain.UserID]PresenceEntry
	now     func() time.Time
}

var _ core.Presence = (*MemoryPresence)(nil)

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		entries: make(map[domain.UserID]PresenceEntry),
		now:     time.Now,
	}
}

func (p *MemoryPresence) SetRoom(_ context.Context, user domain.UserID, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[user] = PresenceEntry{Online: true, Room: room, LastSeen: p.now()}
	return nil
}

func (p *MemoryPresence) Clear(_ context.Context, user domain.UserID, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[user]
	if !ok || e.Room != room {
		return nil
	}
	p.entries[user] = PresenceEntry{Online: false, LastSeen: p.now()}
	return nil
}

func (p *MemoryPresence) Get(user domain.UserID) (PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[user]
	return e, ok
}

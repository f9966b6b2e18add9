package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
)

var errFull = errors.New("buffer full")

// fakeConn records frames. With capacity > 0 it fails once full.
type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	capacity int
	closed   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.capacity > 0 && len(c.frames) >= c.capacity {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type failingGroups struct {
	core.GroupLayer
	err error
}

func (f failingGroups) Join(context.Context, domain.GroupName, core.Member) error { return f.err }

type fakePresence struct {
	mu      sync.Mutex
	set     []domain.RoomID
	cleared []domain.RoomID
	err     error
}

func (p *fakePresence) SetRoom(_ context.Context, _ domain.UserID, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.set = append(p.set, room)
	return nil
}

func (p *fakePresence) Clear(_ context.Context, _ domain.UserID, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, room)
	return nil
}

type denyAll struct{ forgotten []core.ConnID }

func (d *denyAll) Allow(core.ConnID) bool { return false }
func (d *denyAll) Forget(id core.ConnID)  { d.forgotten = append(d.forgotten, id) }

type fakePublisher struct {
	mu    sync.Mutex
	ok    bool
	calls []string
}

func (p *fakePublisher) Publish(_ context.Context, username string, t domain.EventType, _ json.RawMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, username+"/"+string(t))
	return p.ok
}

type fakeDirectory map[domain.UserID]string

func (d fakeDirectory) Lookup(_ context.Context, id domain.UserID) (domain.Identity, error) {
	name, ok := d[id]
	if !ok {
		return domain.Identity{}, core.ErrUnknownUser
	}
	return domain.NewIdentity(id, name)
}

package core

import (
	"sync"

	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// Group is a threadsafe in-memory member set.
// It never closes adapter-owned resources.
type Group struct {
	name    domain.GroupName
	mu      sync.RWMutex
	members map[ConnID]Member
}

func NewGroup(name domain.GroupName) *Group {
	return &Group{
		name:    name,
		members: make(map[ConnID]Member),
	}
}

func (g *Group) Name() domain.GroupName { return g.name }

func (g *Group) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Add reports whether m was not a member yet.
func (g *Group) Add(m Member) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[m.ID()]; ok {
		return false
	}
	g.members[m.ID()] = m
	log.Debug().Str("module", "core.group").Str("group", string(g.name)).Str("conn", string(m.ID())).Msg("member added")
	return true
}

// Remove reports whether id was a member.
func (g *Group) Remove(id ConnID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; !ok {
		return false
	}
	delete(g.members, id)
	log.Debug().Str("module", "core.group").Str("group", string(g.name)).Str("conn", string(id)).Msg("member removed")
	return true
}

func (g *Group) IDs() []ConnID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ConnID, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	return out
}

// Snapshot returns every member except exclude.
func (g *Group) Snapshot(exclude ConnID) []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Member, 0, len(g.members))
	for id, m := range g.members {
		if id == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Fanout hands env to each member independently. A failing member is
// reported in Dropped and does not affect the others.
func Fanout(members []Member, env Envelope) PublishResult {
	res := PublishResult{}
	for _, m := range members {
		if err := m.Deliver(env); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	return res
}

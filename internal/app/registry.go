package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the single-node GroupLayer. Groups appear on first join and
// are removed by the leave that empties them.
type Registry struct {
	mu     sync.RWMutex
	groups map[domain.GroupName]*core.Group

	policy Policy
	stats  *Stats
}

var _ core.GroupLayer = (*Registry)(nil)

func NewRegistry(policy Policy, stats *Stats) *Registry {
	if policy == nil {
		policy = SimplePolicy{}
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Registry{
		groups: make(map[domain.GroupName]*core.Group),
		policy: policy,
		stats:  stats,
	}
}

func (r *Registry) Join(_ context.Context, name domain.GroupName, m core.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		g = core.NewGroup(name)
		r.groups[name] = g
	}
	if g.Add(m) {
		log.Info().Str("module", "app.registry").Str("group", string(name)).Str("conn", string(m.ID())).Int("members", g.MemberCount()).Msg("joined")
	}
	return nil
}

func (r *Registry) Leave(_ context.Context, name domain.GroupName, id core.ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		return nil
	}
	if g.Remove(id) {
		log.Info().Str("module", "app.registry").Str("group", string(name)).Str("conn", string(id)).Int("members", g.MemberCount()).Msg("left")
	}
	if g.MemberCount() == 0 {
		delete(r.groups, name)
		log.Debug().Str("module", "app.registry").Str("group", string(name)).Msg("group removed")
	}
	return nil
}

func (r *Registry) Broadcast(_ context.Context, name domain.GroupName, env core.Envelope, exclude core.ConnID) error {
	r.Deliver(name, env, exclude)
	return nil
}

// Deliver fans env out to the local members of name and applies the
// backpressure policy to the ones that could not take it.
func (r *Registry) Deliver(name domain.GroupName, env core.Envelope, exclude core.ConnID) core.PublishResult {
	r.mu.RLock()
	g, ok := r.groups[name]
	var targets []core.Member
	if ok {
		targets = g.Snapshot(exclude)
	}
	r.mu.RUnlock()
	if !ok {
		return core.PublishResult{}
	}

	res := core.Fanout(targets, env)
	r.stats.Delivered.Add(int64(res.SendTo))
	r.stats.Dropped.Add(int64(len(res.Dropped)))
	log.Debug().Str("module", "app.registry").Str("group", string(name)).Str("type", env.Type).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")

	for _, slow := range res.Dropped {
		switch r.policy.OnBackPressure(name, slow) {
		case KickMember:
			r.stats.Kicked.Add(1)
			log.Warn().Str("module", "app.registry").Str("group", string(name)).Str("conn", string(slow.ID())).Msg("kicking slow member")
			// Closing the transport ends its read loop, which leaves every group.
			slow.Close()
		case MarkSlow:
			log.Warn().Str("module", "app.registry").Str("group", string(name)).Str("conn", string(slow.ID())).Msg("slow member")
		case DropFrame, NoAction:
		}
	}
	return res
}

func (r *Registry) Members(_ context.Context, name domain.GroupName) ([]core.ConnID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	if !ok {
		return nil, nil
	}
	return g.IDs(), nil
}

func (r *Registry) Groups(_ context.Context) ([]core.GroupInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.GroupInfo, 0, len(r.groups))
	for name, g := range r.groups {
		out = append(out, core.GroupInfo{Name: name, MemberCount: g.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Len is the number of live groups.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

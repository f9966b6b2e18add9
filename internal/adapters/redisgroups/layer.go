// Package redisgroups spans groups across nodes: membership lives in a Redis
// set per group and broadcasts travel over Redis pub/sub. Each node delivers
// to the sockets it holds through its local registry.
package redisgroups

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dkeye/ChessSignal/internal/app"
	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type wireMessage struct {
	Group    domain.GroupName `json:"group"`
	Exclude  core.ConnID      `json:"exclude,omitempty"`
	Envelope core.Envelope    `json:"envelope"`
}

type Layer struct {
	rdb    redis.UniversalClient
	prefix string
	local  *app.Registry

	ready     chan struct{}
	readyOnce sync.Once
}

var _ core.GroupLayer = (*Layer)(nil)

func New(rdb redis.UniversalClient, prefix string, local *app.Registry) *Layer {
	if prefix == "" {
		prefix = "chess"
	}
	return &Layer{
		rdb:    rdb,
		prefix: prefix,
		local:  local,
		ready:  make(chan struct{}),
	}
}

func (l *Layer) membersKey(g domain.GroupName) string { return l.prefix + ":members:" + string(g) }
func (l *Layer) channel(g domain.GroupName) string    { return l.prefix + ":group:" + string(g) }

// Ready is closed once the subscription is live.
func (l *Layer) Ready() <-chan struct{} { return l.ready }

func (l *Layer) Join(ctx context.Context, g domain.GroupName, m core.Member) error {
	if err := l.local.Join(ctx, g, m); err != nil {
		return err
	}
	if err := l.rdb.SAdd(ctx, l.membersKey(g), string(m.ID())).Err(); err != nil {
		_ = l.local.Leave(ctx, g, m.ID())
		return fmt.Errorf("redis sadd %s: %w", g, err)
	}
	return nil
}

// Leave drops the member locally first, so a failing Redis never keeps
// delivering to a dead socket. Redis deletes the set with its last member.
func (l *Layer) Leave(ctx context.Context, g domain.GroupName, id core.ConnID) error {
	_ = l.local.Leave(ctx, g, id)
	if err := l.rdb.SRem(ctx, l.membersKey(g), string(id)).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", g, err)
	}
	return nil
}

func (l *Layer) Broadcast(ctx context.Context, g domain.GroupName, env core.Envelope, exclude core.ConnID) error {
	data, err := json.Marshal(wireMessage{Group: g, Exclude: exclude, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	if err := l.rdb.Publish(ctx, l.channel(g), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", g, err)
	}
	return nil
}

func (l *Layer) Members(ctx context.Context, g domain.GroupName) ([]core.ConnID, error) {
	ids, err := l.rdb.SMembers(ctx, l.membersKey(g)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", g, err)
	}
	out := make([]core.ConnID, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.ConnID(id))
	}
	return out, nil
}

func (l *Layer) Groups(ctx context.Context) ([]core.GroupInfo, error) {
	var out []core.GroupInfo
	prefix := l.prefix + ":members:"
	iter := l.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := l.rdb.SCard(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scard %s: %w", key, err)
		}
		if n == 0 {
			continue
		}
		out = append(out, core.GroupInfo{Name: domain.GroupName(strings.TrimPrefix(key, prefix)), MemberCount: int(n)})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Run subscribes to every group channel and hands incoming broadcasts to
// the local registry until ctx is done.
func (l *Layer) Run(ctx context.Context) error {
	ps := l.rdb.PSubscribe(ctx, l.prefix+":group:*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	l.readyOnce.Do(func() { close(l.ready) })
	log.Info().Str("module", "redisgroups").Str("prefix", l.prefix).Msg("subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.dispatch(msg.Payload)
		}
	}
}

func (l *Layer) dispatch(payload string) {
	var wm wireMessage
	if err := json.Unmarshal([]byte(payload), &wm); err != nil {
		log.Warn().Err(err).Str("module", "redisgroups").Msg("bad broadcast on bus")
		return
	}
	l.local.Deliver(wm.Group, wm.Envelope, wm.Exclude)
}

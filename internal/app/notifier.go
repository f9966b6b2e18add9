package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrNoTarget = errors.New("notification target has no user id")

// Notifier is what the application layer calls when an invitation or call
// changes state. It pushes the event to the user's sockets and to the
// broker at the same time; neither path can fail the caller.
type Notifier struct {
	Groups    core.GroupLayer
	Publisher core.Publisher     // optional
	Directory core.UserDirectory // optional, fills in a missing username
	Stats     *Stats
}

func NewNotifier(groups core.GroupLayer, publisher core.Publisher, directory core.UserDirectory, stats *Stats) *Notifier {
	if stats == nil {
		stats = &Stats{}
	}
	return &Notifier{Groups: groups, Publisher: publisher, Directory: directory, Stats: stats}
}

func (n *Notifier) Notify(ctx context.Context, target domain.Identity, ev domain.NotificationEvent) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, ev.Type)
	}
	if target.IsAnonymous() {
		return ErrNoTarget
	}
	if target.Username == "" && n.Directory != nil {
		if resolved, err := n.Directory.Lookup(ctx, target.UserID); err == nil {
			target.Username = resolved.Username
		} else {
			log.Warn().Err(err).Str("module", "app.notifier").Str("user", string(target.UserID)).Msg("username lookup")
		}
	}

	env := core.Envelope{Type: string(ev.Type), Payload: ev.Payload}
	group := domain.UserGroup(target.UserID)

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := n.Groups.Broadcast(ctx, group, env, ""); err != nil {
			log.Warn().Err(err).Str("module", "app.notifier").Str("group", string(group)).Str("type", env.Type).Msg("socket path failed")
		}
	})
	if n.Publisher != nil && target.Username != "" {
		wg.Go(func() {
			if n.Publisher.Publish(ctx, target.Username, ev.Type, ev.Payload) {
				n.Stats.MQTTSent.Add(1)
			} else {
				n.Stats.MQTTFailed.Add(1)
			}
		})
	}
	wg.Wait()

	n.Stats.Notified.Add(1)
	log.Info().Str("module", "app.notifier").Str("user", string(target.UserID)).Str("type", env.Type).Msg("notified")
	return nil
}

package presence

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/game/chat"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// FeedChannels are the PubSub channels a player feed listens on.
var FeedChannels = []string{guild.ChannelEvents, ChannelTags, chat.ChannelChat}

// GuildLookup resolves a player's current guild.
type GuildLookup interface {
	GetPlayerGuild(ctx context.Context, identity int64) (*model.Guild, error)
}

type relayedEvent struct {
	Event hook.Event `json:"event"`
}

// Feed selects, out of the cluster-wide guild channels, the messages that
// concern one player: every event of the guild they are in, events naming
// them (invites, kicks), their own scoreboard tag changes and their
// guild's chat.
// A Feed is used by a single goroutine.
type Feed struct {
	identity int64
	guilds   GuildLookup
	logger   *zap.Logger

	// last guild seen for the player, so members still get the event that
	// removed them (disband) after the lookup stops returning it.
	known int64
}

// NewFeed creates a Feed for identity, seeding its guild from guilds.
func NewFeed(ctx context.Context, identity int64, guilds GuildLookup, logger *zap.Logger) *Feed {
	f := &Feed{identity: identity, guilds: guilds, logger: logger}
	f.refresh(ctx)
	return f
}

// GuildID returns the guild the feed currently follows, 0 for none.
func (f *Feed) GuildID() int64 { return f.known }

// Match reports whether msg concerns the feed's player and returns the event
// name and JSON payload to deliver.
func (f *Feed) Match(ctx context.Context, msg *cache.Message) (string, string, bool) {
	switch msg.Channel {
	case ChannelTags:
		var tu TagUpdate
		if err := json.Unmarshal([]byte(msg.Payload), &tu); err != nil || tu.Identity != f.identity {
			return "", "", false
		}
		return "tag", msg.Payload, true

	case chat.ChannelChat:
		var m chat.Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			return "", "", false
		}
		if f.known == 0 {
			f.refresh(ctx)
		}
		if f.known == 0 || m.GuildID != f.known {
			return "", "", false
		}
		return "chat", msg.Payload, true

	case guild.ChannelEvents:
		var r relayedEvent
		if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
			f.logger.Warn("feed: bad event payload", zap.Error(err))
			return "", "", false
		}
		ev := r.Event
		mine := ev.Identity == f.identity || ev.ActorIdentity == f.identity || (f.known != 0 && ev.GuildID == f.known)
		if f.refresh(ctx) && f.known != 0 && f.known == ev.GuildID {
			mine = true
		}
		if !mine {
			return "", "", false
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return "", "", false
		}
		return string(ev.Kind), string(b), true
	}
	return "", "", false
}

// refresh re-reads the player's guild. It reports false if the lookup failed
// and known was left as it was.
func (f *Feed) refresh(ctx context.Context) bool {
	g, err := f.guilds.GetPlayerGuild(ctx, f.identity)
	if err != nil {
		f.logger.Warn("feed: guild lookup failed", zap.Int64("identity", f.identity), zap.Error(err))
		return false
	}
	if g == nil {
		f.known = 0
		return true
	}
	f.known = g.ID
	return true
}

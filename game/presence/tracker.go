// Package presence tracks online players and keeps their scoreboard guild
// tags current.
package presence

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// ChannelTags carries scoreboard tag updates to game servers.
const ChannelTags = "guild:tags"

// Directory is the part of the guild service presence depends on.
type Directory interface {
	OnPlayerConnect(ctx context.Context, p guild.Player) (string, error)
	OnPlayerDisconnect(identity int64)
	PlayerTag(ctx context.Context, identity int64) (string, error)
	DispatchPerkHook(ctx context.Context, identity int64, h guild.PerkHook) (int, error)
}

// TagSink receives scoreboard tag changes.
type TagSink interface {
	SetTag(ctx context.Context, identity int64, tag string) error
}

// TagUpdate is the payload published by PubSubTagSink.
type TagUpdate struct {
	Identity int64  `json:"identity"`
	Tag      string `json:"tag"`
}

// PubSubTagSink publishes tag updates on ChannelTags.
type PubSubTagSink struct {
	ps cache.PubSub
}

func NewPubSubTagSink(ps cache.PubSub) *PubSubTagSink { return &PubSubTagSink{ps: ps} }

func (s *PubSubTagSink) SetTag(ctx context.Context, identity int64, tag string) error {
	b, err := json.Marshal(TagUpdate{Identity: identity, Tag: tag})
	if err != nil {
		return err
	}
	return s.ps.Publish(ctx, ChannelTags, string(b))
}

// Session is one online player.
type Session struct {
	Identity    int64     `json:"identity"`
	Name        string    `json:"name"`
	Tag         string    `json:"tag"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Tracker maintains the registry of online players.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	dir      Directory
	sink     TagSink
	logger   *zap.Logger
	subs     []*hook.Subscription
}

func NewTracker(dir Directory, sink TagSink, logger *zap.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[int64]*Session),
		dir:      dir,
		sink:     sink,
		logger:   logger,
	}
}

// Connect registers p, replacing any previous session for the same
// identity, and pushes their current tag.
func (t *Tracker) Connect(ctx context.Context, p guild.Player) error {
	tag, err := t.dir.OnPlayerConnect(ctx, p)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if _, ok := t.sessions[p.Identity]; ok {
		t.logger.Info("duplicate session displaced", zap.Int64("identity", p.Identity))
	}
	t.sessions[p.Identity] = &Session{Identity: p.Identity, Name: p.Name, Tag: tag, ConnectedAt: time.Now()}
	t.mu.Unlock()

	t.logger.Info("player online", zap.Int64("identity", p.Identity), zap.String("name", p.Name))
	return t.push(ctx, p.Identity, tag)
}

// Disconnect removes identity's session.
func (t *Tracker) Disconnect(identity int64) {
	t.mu.Lock()
	_, ok := t.sessions[identity]
	delete(t.sessions, identity)
	t.mu.Unlock()
	if !ok {
		return
	}
	t.dir.OnPlayerDisconnect(identity)
	t.logger.Info("player offline", zap.Int64("identity", identity))
}

// Get returns a copy of identity's session.
func (t *Tracker) Get(identity int64) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[identity]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// GetByName finds an online player by name, case-insensitively.
func (t *Tracker) GetByName(name string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		if strings.EqualFold(s.Name, name) {
			return *s, true
		}
	}
	return Session{}, false
}

func (t *Tracker) IsOnline(identity int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[identity]
	return ok
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// All returns a snapshot of the online players.
func (t *Tracker) All() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	return out
}

// Refresh recomputes identity's tag and pushes it if it changed.
func (t *Tracker) Refresh(ctx context.Context, identity int64) error {
	if !t.IsOnline(identity) {
		return nil
	}
	tag, err := t.dir.PlayerTag(ctx, identity)
	if err != nil {
		return err
	}
	t.mu.Lock()
	s, ok := t.sessions[identity]
	changed := ok && s.Tag != tag
	if changed {
		s.Tag = tag
	}
	t.mu.Unlock()
	if !changed {
		return nil
	}
	return t.push(ctx, identity, tag)
}

// RefreshAll refreshes every online player's tag. Errors are logged and
// the sweep continues.
func (t *Tracker) RefreshAll(ctx context.Context) int {
	changed := 0
	for _, s := range t.All() {
		if ctx.Err() != nil {
			break
		}
		before := s.Tag
		if err := t.Refresh(ctx, s.Identity); err != nil {
			t.logger.Warn("tag refresh failed", zap.Int64("identity", s.Identity), zap.Error(err))
			continue
		}
		if cur, ok := t.Get(s.Identity); ok && cur.Tag != before {
			changed++
		}
	}
	return changed
}

// Dispatch runs a perk lifecycle hook for an online player.
func (t *Tracker) Dispatch(ctx context.Context, identity int64, h guild.PerkHook) (int, error) {
	if !t.IsOnline(identity) {
		return 0, nil
	}
	return t.dir.DispatchPerkHook(ctx, identity, h)
}

// HandleEvent refreshes the tags an event may have changed. It is used as
// a bus handler and for events relayed from peer nodes.
func (t *Tracker) HandleEvent(ctx context.Context, ev hook.Event) {
	switch ev.Kind {
	case hook.GuildCreated, hook.MemberJoined, hook.MemberLeft, hook.MemberKicked:
		if err := t.Refresh(ctx, ev.Identity); err != nil {
			t.logger.Warn("tag refresh failed", zap.Int64("identity", ev.Identity), zap.Error(err))
		}
	case hook.GuildDisbanded:
		t.RefreshAll(ctx)
	}
}

// Attach subscribes HandleEvent to bus.
func (t *Tracker) Attach(bus *hook.Bus) {
	for _, k := range []hook.Kind{hook.GuildCreated, hook.MemberJoined, hook.MemberLeft, hook.MemberKicked, hook.GuildDisbanded} {
		t.subs = append(t.subs, bus.Subscribe(k, 100, "presence", t.HandleEvent))
	}
}

// Detach undoes Attach.
func (t *Tracker) Detach() {
	for _, s := range t.subs {
		s.Unsubscribe()
	}
	t.subs = nil
}

func (t *Tracker) push(ctx context.Context, identity int64, tag string) error {
	if t.sink == nil {
		return nil
	}
	return t.sink.SetTag(ctx, identity, tag)
}

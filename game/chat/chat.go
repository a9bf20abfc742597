// Package chat carries guild chat between members across every node.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

const maxMsgLen = 200

// ChannelChat carries guild chat messages between nodes.
const ChannelChat = "guild:chat"

// Message keys.
const (
	ErrMsgEmpty        = "chat.error.empty"
	ErrMsgTooLong      = "chat.error.too_long"
	ErrMsgNoPermission = "chat.error.no_permission"
	ErrMsgCooldown     = "chat.error.cooldown"
	MsgSent            = "chat.success.sent"
)

// Message is one guild chat line.
type Message struct {
	GuildID      int64  `json:"guild_id"`
	FromIdentity int64  `json:"from_identity"`
	FromName     string `json:"from_name"`
	Content      string `json:"content"`
	TS           int64  `json:"ts"`
}

// Members is the part of the guild service chat depends on.
type Members interface {
	GetMember(ctx context.Context, identity int64) (*guild.MemberInfo, error)
}

// Service validates and publishes guild chat and keeps a short history per
// guild, fed from the shared channel so every node holds the same lines.
type Service struct {
	members  Members
	pubsub   cache.PubSub
	cooldown time.Duration
	keep     int
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	history  map[int64][]Message
	lastSent map[int64]time.Time
	pruned   time.Time

	subs   []*hook.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a chat Service.
func NewService(members Members, ps cache.PubSub, cfg config.GuildConfig, logger *zap.Logger) *Service {
	keep := cfg.ChatHistory
	if keep <= 0 {
		keep = 50
	}
	return &Service{
		members:  members,
		pubsub:   ps,
		cooldown: cfg.ChatCooldown,
		keep:     keep,
		now:      time.Now,
		logger:   logger,
		history:  make(map[int64][]Message),
		lastSent: make(map[int64]time.Time),
	}
}

// Start subscribes to ChannelChat and records every line into history.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	msgs, unsub, err := s.pubsub.Subscribe(ctx, ChannelChat)
	if err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		defer unsub()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					s.logger.Warn("chat: bad payload", zap.Error(err))
					continue
				}
				s.record(m)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the subscription started by Start.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// pruneLocked forgets senders whose cooldown has run out, at most once per
// cooldown.
func (s *Service) pruneLocked(now time.Time) {
	if now.Sub(s.pruned) < s.cooldown {
		return
	}
	s.pruned = now
	for id, last := range s.lastSent {
		if now.Sub(last) >= s.cooldown {
			delete(s.lastSent, id)
		}
	}
}

// Send posts content to the sender's guild chat. The sender needs the Chat
// permission and is limited to one line per cooldown.
func (s *Service) Send(ctx context.Context, from guild.Player, content string) (guild.Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return guild.Result{Kind: guild.KindValidation, Message: ErrMsgEmpty}, nil
	}
	if len([]rune(content)) > maxMsgLen {
		return guild.Result{Kind: guild.KindValidation, Message: ErrMsgTooLong}.With("max", maxMsgLen), nil
	}
	m, err := s.members.GetMember(ctx, from.Identity)
	if err != nil {
		return guild.Result{}, err
	}
	if m == nil {
		return guild.Result{Kind: guild.KindNotFound, Message: guild.ErrMsgNotInGuild}, nil
	}
	if !m.Rank.Has(guild.PermChat) {
		return guild.Result{Kind: guild.KindPermissionDenied, Message: ErrMsgNoPermission}, nil
	}

	now := s.now()
	s.mu.Lock()
	if last, ok := s.lastSent[from.Identity]; ok && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		return guild.Result{Kind: guild.KindConflict, Message: ErrMsgCooldown}, nil
	}
	s.lastSent[from.Identity] = now
	s.pruneLocked(now)
	s.mu.Unlock()

	name := from.Name
	if name == "" {
		name = m.DisplayName
	}
	msg := Message{GuildID: m.GuildID, FromIdentity: from.Identity, FromName: name, Content: content, TS: now.UnixMilli()}
	b, err := json.Marshal(msg)
	if err != nil {
		return guild.Result{}, err
	}
	if err := s.pubsub.Publish(ctx, ChannelChat, string(b)); err != nil {
		return guild.Result{}, err
	}
	return guild.Result{Kind: guild.KindOK, Message: MsgSent}, nil
}

// History returns up to n of guildID's most recent lines, oldest first.
func (s *Service) History(guildID int64, n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[guildID]
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Message(nil), h...)
}

func (s *Service) record(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[m.GuildID], m)
	if len(h) > s.keep {
		h = h[len(h)-s.keep:]
	}
	s.history[m.GuildID] = h
}

// HandleEvent drops the history of disbanded guilds.
func (s *Service) HandleEvent(_ context.Context, ev hook.Event) {
	if ev.Kind != hook.GuildDisbanded {
		return
	}
	s.mu.Lock()
	delete(s.history, ev.GuildID)
	s.mu.Unlock()
}

// Attach subscribes HandleEvent to bus.
func (s *Service) Attach(bus *hook.Bus) {
	s.subs = append(s.subs, bus.Subscribe(hook.GuildDisbanded, 100, "chat", s.HandleEvent))
}

// Detach undoes Attach.
func (s *Service) Detach() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

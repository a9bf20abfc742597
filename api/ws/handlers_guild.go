package ws

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/guildserver/game/chat"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	"go.uber.org/zap"
)

// GuildHandlers serves the in-game guild commands sent over the socket.
type GuildHandlers struct {
	svc     *guild.Service
	tracker *presence.Tracker
	chat    *chat.Service
	logger  *zap.Logger
}

func NewGuildHandlers(svc *guild.Service, tracker *presence.Tracker, logger *zap.Logger) *GuildHandlers {
	return &GuildHandlers{svc: svc, tracker: tracker, logger: logger}
}

// WithChat enables the guild_chat message.
func (gh *GuildHandlers) WithChat(cs *chat.Service) *GuildHandlers {
	gh.chat = cs
	return gh
}

// Register binds every guild message type on r.
func (gh *GuildHandlers) Register(r *Router) {
	r.On("guild_info", gh.handleInfo)
	r.On("guild_invite", gh.handleInvite)
	r.On("guild_accept", gh.handleAccept)
	r.On("guild_decline", gh.handleDecline)
	r.On("guild_leave", gh.handleLeave)
	r.On("guild_disband", gh.handleDisband)
	r.On("guild_kick", gh.handleTarget("kick", gh.svc.Kick))
	r.On("guild_promote", gh.handleTarget("promote", gh.svc.Promote))
	r.On("guild_demote", gh.handleTarget("demote", gh.svc.Demote))
	r.On("guild_deposit", gh.handleAmount("deposit", gh.svc.Deposit))
	r.On("guild_withdraw", gh.handleAmount("withdraw", gh.svc.Withdraw))
	r.On("perk_hook", gh.handlePerkHook)
	if gh.chat != nil {
		r.On("guild_chat", gh.handleChat)
	}
}

// resultReply is the payload of a "guild_result" packet.
type resultReply struct {
	Op string `json:"op"`
	guild.Result
}

func (gh *GuildHandlers) reply(ctx context.Context, s *Session, op string, res guild.Result) {
	s.Reply(SeqFromCtx(ctx), "guild_result", resultReply{Op: op, Result: res})
}

func (gh *GuildHandlers) invalid(ctx context.Context, s *Session, msgType, msg string) {
	s.Reply(SeqFromCtx(ctx), "error", map[string]string{"error": msg, "type": msgType})
}

func (gh *GuildHandlers) handleInfo(ctx context.Context, s *Session, _ json.RawMessage) error {
	g, err := gh.svc.GetPlayerGuild(ctx, s.Identity)
	if err != nil {
		return err
	}
	if g == nil {
		s.Reply(SeqFromCtx(ctx), "guild_info", map[string]any{"guild": nil})
		return nil
	}
	s.Reply(SeqFromCtx(ctx), "guild_info", map[string]any{
		"guild":     g,
		"max_slots": gh.svc.MaxSlots(g),
		"tag":       gh.svc.ScoreboardTag(g),
	})
	return nil
}

func (gh *GuildHandlers) handleInvite(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.Name == "" {
		gh.invalid(ctx, s, "guild_invite", "name required")
		return nil
	}
	target, ok := gh.tracker.GetByName(req.Name)
	if !ok {
		gh.invalid(ctx, s, "guild_invite", "player not online")
		return nil
	}
	res, err := gh.svc.Invite(ctx, s.Identity, guild.Player{Identity: target.Identity, Name: target.Name})
	if err != nil {
		return err
	}
	gh.reply(ctx, s, "invite", res)
	return nil
}

func (gh *GuildHandlers) handleAccept(ctx context.Context, s *Session, _ json.RawMessage) error {
	res, err := gh.svc.AcceptInvite(ctx, guild.Player{Identity: s.Identity, Name: s.Name})
	if err != nil {
		return err
	}
	gh.reply(ctx, s, "accept", res)
	return nil
}

func (gh *GuildHandlers) handleDecline(ctx context.Context, s *Session, _ json.RawMessage) error {
	gh.reply(ctx, s, "decline", gh.svc.DeclineInvite(s.Identity))
	return nil
}

func (gh *GuildHandlers) handleLeave(ctx context.Context, s *Session, _ json.RawMessage) error {
	res, err := gh.svc.Leave(ctx, s.Identity)
	if err != nil {
		return err
	}
	gh.reply(ctx, s, "leave", res)
	return nil
}

func (gh *GuildHandlers) handleDisband(ctx context.Context, s *Session, _ json.RawMessage) error {
	res, err := gh.svc.Disband(ctx, s.Identity)
	if err != nil {
		return err
	}
	gh.reply(ctx, s, "disband", res)
	return nil
}

func (gh *GuildHandlers) handleTarget(op string, fn func(ctx context.Context, actor, target int64) (guild.Result, error)) HandlerFunc {
	return func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var req struct {
			Identity int64 `json:"identity"`
		}
		if err := json.Unmarshal(raw, &req); err != nil || req.Identity <= 0 {
			gh.invalid(ctx, s, "guild_"+op, "identity required")
			return nil
		}
		res, err := fn(ctx, s.Identity, req.Identity)
		if err != nil {
			return err
		}
		gh.reply(ctx, s, op, res)
		return nil
	}
}

func (gh *GuildHandlers) handleAmount(op string, fn func(ctx context.Context, actor, amount int64) (guild.Result, error)) HandlerFunc {
	return func(ctx context.Context, s *Session, raw json.RawMessage) error {
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			gh.invalid(ctx, s, "guild_"+op, "amount required")
			return nil
		}
		res, err := fn(ctx, s.Identity, req.Amount)
		if err != nil {
			return err
		}
		gh.reply(ctx, s, op, res)
		return nil
	}
}

func (gh *GuildHandlers) handlePerkHook(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req struct {
		Hook string `json:"hook"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		gh.invalid(ctx, s, "perk_hook", "hook required")
		return nil
	}
	h, ok := guild.ParsePerkHook(req.Hook)
	if !ok {
		gh.invalid(ctx, s, "perk_hook", "unknown hook")
		return nil
	}
	n, err := gh.tracker.Dispatch(ctx, s.Identity, h)
	if err != nil {
		return err
	}
	s.Reply(SeqFromCtx(ctx), "perk_hook", map[string]any{"hook": h.String(), "perks": n})
	return nil
}

func (gh *GuildHandlers) handleChat(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		gh.invalid(ctx, s, "guild_chat", "content required")
		return nil
	}
	res, err := gh.chat.Send(ctx, guild.Player{Identity: s.Identity, Name: s.Name}, req.Content)
	if err != nil {
		return err
	}
	gh.reply(ctx, s, "chat", res)
	return nil
}

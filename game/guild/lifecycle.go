package guild

import (
	"context"
	"errors"

	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// Create founds a guild led by actor, charging the configured creation
// cost from actor's wallet.
func (s *Service) Create(ctx context.Context, actor Player, name, tag string) (*model.Guild, Result, error) {
	name, res := s.validateName(name)
	if !res.OK() {
		return nil, res, nil
	}
	tag, res = s.validateTag(tag)
	if !res.OK() {
		return nil, res, nil
	}
	current, err := s.cache.GetByIdentity(ctx, actor.Identity)
	if err != nil {
		return nil, Result{}, err
	}
	if current != nil {
		return nil, fail(KindConflict, ErrMsgAlreadyInGuild), nil
	}
	taken, err := s.store.GetGuildByName(ctx, name)
	if err != nil {
		return nil, Result{}, err
	}
	if taken != nil {
		return nil, fail(KindConflict, ErrMsgNameTaken).With("name", name), nil
	}

	cost := s.cfg.CreationCost
	if cost > 0 {
		if res, err := s.progression.charge(ctx, actor.Identity, cost); err != nil || !res.OK() {
			return nil, res, err
		}
	}

	now := s.now()
	g := &model.Guild{Name: name, Tag: tag, LeaderIdentity: actor.Identity}
	leader := &model.Member{
		Identity:     actor.Identity,
		DisplayName:  actor.Name,
		RankPriority: s.ranks.LeaderRank().Priority,
		JoinedAt:     now,
		LastSeen:     now,
	}
	if err := s.store.CreateGuild(ctx, g, leader); err != nil {
		if cost > 0 {
			s.progression.refund(ctx, actor.Identity, cost, "create")
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, Result{}, err
		}
		// Lost a race: either the name or the leader is now taken.
		if other, _ := s.store.GetGuildByName(ctx, name); other != nil {
			return nil, fail(KindConflict, ErrMsgNameTaken).With("name", name), nil
		}
		return nil, fail(KindConflict, ErrMsgAlreadyInGuild), nil
	}

	s.cache.InvalidateIdentity(actor.Identity)
	s.cache.InvalidateGuild(g.ID)
	s.logger.Info("guild created",
		zap.Int64("guild_id", g.ID), zap.String("name", g.Name), zap.Int64("leader", actor.Identity))
	s.emit(ctx, g, hook.Event{Kind: hook.GuildCreated, Identity: actor.Identity, ActorIdentity: actor.Identity, Amount: cost})
	return g, success(MsgCreated).With("name", g.Name).With("tag", g.Tag), nil
}

// Rename changes the guild name, charging cost from the leader's wallet.
// Renaming to the guild's own current name is allowed.
func (s *Service) Rename(ctx context.Context, actor int64, newName string, cost int64) (Result, error) {
	g, _, res, err := s.memberOf(ctx, actor)
	if err != nil || !res.OK() {
		return res, err
	}
	if g.LeaderIdentity != actor {
		return fail(KindPermissionDenied, ErrMsgNotLeader), nil
	}
	newName, res = s.validateName(newName)
	if !res.OK() {
		return res, nil
	}
	other, err := s.store.GetGuildByName(ctx, newName)
	if err != nil {
		return Result{}, err
	}
	if other != nil && other.ID != g.ID {
		return fail(KindConflict, ErrMsgNameTaken).With("name", newName), nil
	}
	if cost > 0 {
		if res, err := s.progression.charge(ctx, actor, cost); err != nil || !res.OK() {
			return res, err
		}
	}
	if err := s.store.RenameGuild(ctx, g.ID, newName); err != nil {
		if cost > 0 {
			s.progression.refund(ctx, actor, cost, "rename")
		}
		if errors.Is(err, ErrDuplicate) {
			return fail(KindConflict, ErrMsgNameTaken).With("name", newName), nil
		}
		return Result{}, err
	}
	s.cache.InvalidateGuild(g.ID)

	oldName := g.Name
	s.emit(ctx, &model.Guild{ID: g.ID, Name: newName, Tag: g.Tag}, hook.Event{
		Kind: hook.GuildRenamed, ActorIdentity: actor, Amount: cost, Detail: oldName,
	})
	return success(MsgRenamed).With("old", oldName).With("name", newName), nil
}

// Disband deletes the leader's guild, then drops every cached association
// and pending invite pointing at it.
func (s *Service) Disband(ctx context.Context, actor int64) (Result, error) {
	g, _, res, err := s.memberOf(ctx, actor)
	if err != nil || !res.OK() {
		return res, err
	}
	if g.LeaderIdentity != actor {
		return fail(KindPermissionDenied, ErrMsgNotLeader), nil
	}
	deleted, err := s.store.DeleteGuild(ctx, g.ID)
	if err != nil {
		return Result{}, err
	}
	if !deleted {
		s.cache.InvalidateGuild(g.ID)
		return fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	for _, m := range g.Members {
		s.cache.InvalidateIdentity(m.Identity)
	}
	s.cache.InvalidateGuild(g.ID)
	dropped := s.invites.RemoveAllForGuild(g.ID)

	s.logger.Info("guild disbanded",
		zap.Int64("guild_id", g.ID), zap.String("name", g.Name), zap.Int("invites_dropped", dropped))
	s.emit(ctx, g, hook.Event{Kind: hook.GuildDisbanded, ActorIdentity: actor, Balance: g.BankBalance})
	return success(MsgDisbanded).With("name", g.Name), nil
}

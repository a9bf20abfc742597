package guild

import (
	"context"
	"errors"

	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
)

// Invite offers invitee a place in inviter's guild.
func (s *Service) Invite(ctx context.Context, inviter int64, invitee Player) (Result, error) {
	g, _, res, err := s.authorize(ctx, inviter, PermInvite, ErrMsgNoPermInvite)
	if err != nil || !res.OK() {
		return res, err
	}
	if invitee.Identity == inviter {
		return fail(KindValidation, ErrMsgCannotTargetSelf), nil
	}
	theirs, err := s.cache.GetByIdentity(ctx, invitee.Identity)
	if err != nil {
		return Result{}, err
	}
	if theirs != nil {
		return fail(KindConflict, ErrMsgTargetInGuild).With("player", invitee.Name), nil
	}
	if s.invites.HasPending(invitee.Identity) {
		return fail(KindConflict, ErrMsgTargetHasInvite).With("player", invitee.Name), nil
	}
	if len(g.Members) >= s.MaxSlots(g) {
		return fail(KindConflict, ErrMsgGuildFull).With("slots", s.MaxSlots(g)), nil
	}
	if _, ok := s.invites.CreateIfAbsent(g.ID, inviter, invitee.Identity); !ok {
		return fail(KindConflict, ErrMsgTargetHasInvite).With("player", invitee.Name), nil
	}
	s.emit(ctx, g, hook.Event{Kind: hook.InviteSent, Identity: invitee.Identity, ActorIdentity: inviter})
	return success(MsgInviteSent).With("player", invitee.Name).With("guild", g.Name), nil
}

// AcceptInvite joins p to the guild of their pending invite at the default
// rank. Any precondition that fails after the invite was found declines it.
func (s *Service) AcceptInvite(ctx context.Context, p Player) (Result, error) {
	inv, ok := s.invites.Get(p.Identity)
	if !ok {
		return fail(KindNotFound, ErrMsgNoPendingInvite), nil
	}
	g, err := s.cache.Get(ctx, inv.GuildID)
	if err != nil {
		return Result{}, err
	}
	if g == nil {
		s.invites.Decline(p.Identity)
		return fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	current, err := s.cache.GetByIdentity(ctx, p.Identity)
	if err != nil {
		return Result{}, err
	}
	if current != nil {
		s.invites.Decline(p.Identity)
		return fail(KindConflict, ErrMsgAlreadyInGuild), nil
	}
	if len(g.Members) >= s.MaxSlots(g) {
		s.invites.Decline(p.Identity)
		return fail(KindConflict, ErrMsgTargetGuildFull).With("guild", g.Name), nil
	}
	rank, ok := s.ranks.DefaultRank()
	if !ok {
		s.invites.Decline(p.Identity)
		return fail(KindNotFound, ErrMsgNoDefaultRank), nil
	}
	if !s.invites.Accept(p.Identity, g.ID) {
		return fail(KindNotFound, ErrMsgNoPendingInvite), nil
	}

	// The cached member count can lag; the authoritative check runs under
	// the guild lock.
	var res Result
	now := s.now()
	err = s.store.Transaction(ctx, func(tx Store) error {
		locked, err := tx.LockGuild(ctx, g.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			res = fail(KindNotFound, ErrMsgGuildNotFound)
			return errRollback
		}
		level, err := tx.GetUpgradeLevel(ctx, g.ID, model.UpgradeSlots)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		if count >= s.progression.slotsAt(level) {
			res = fail(KindConflict, ErrMsgTargetGuildFull).With("guild", g.Name)
			return errRollback
		}
		err = tx.AddMember(ctx, &model.Member{
			GuildID:      g.ID,
			Identity:     p.Identity,
			DisplayName:  p.Name,
			RankPriority: rank.Priority,
			JoinedAt:     now,
			LastSeen:     now,
		})
		if errors.Is(err, ErrDuplicate) {
			res = fail(KindConflict, ErrMsgAlreadyInGuild)
			return errRollback
		}
		return err
	})
	if errors.Is(err, errRollback) {
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}
	s.cache.InvalidateMember(p.Identity, g.ID)
	s.emit(ctx, g, hook.Event{
		Kind: hook.MemberJoined, Identity: p.Identity, ActorIdentity: inv.Inviter, RankPriority: rank.Priority,
	})
	return success(MsgJoined).With("guild", g.Name).With("rank", rank.Name), nil
}

// DeclineInvite drops identity's pending invite.
func (s *Service) DeclineInvite(identity int64) Result {
	inv, ok := s.invites.Get(identity)
	if !ok {
		return fail(KindNotFound, ErrMsgNoPendingInvite)
	}
	s.invites.Decline(identity)
	return success(MsgInviteDeclined).With("guild_id", inv.GuildID)
}

// Leave removes actor from their guild. The leader must disband instead.
func (s *Service) Leave(ctx context.Context, actor int64) (Result, error) {
	g, _, res, err := s.memberOf(ctx, actor)
	if err != nil || !res.OK() {
		return res, err
	}
	if g.LeaderIdentity == actor {
		return fail(KindConflict, ErrMsgLeaderCannotLeave), nil
	}
	removed, err := s.store.RemoveMember(ctx, g.ID, actor)
	if err != nil {
		return Result{}, err
	}
	s.cache.InvalidateMember(actor, g.ID)
	if !removed {
		return fail(KindNotFound, ErrMsgNotInGuild), nil
	}
	s.emit(ctx, g, hook.Event{Kind: hook.MemberLeft, Identity: actor, ActorIdentity: actor})
	return success(MsgLeft).With("guild", g.Name), nil
}

// Kick removes target from kicker's guild. Only strictly lower ranks can
// be kicked.
func (s *Service) Kick(ctx context.Context, kicker, target int64) (Result, error) {
	g, km, res, err := s.authorize(ctx, kicker, PermKick, ErrMsgNoPermKick)
	if err != nil || !res.OK() {
		return res, err
	}
	tm := g.Member(target)
	if tm == nil {
		return fail(KindNotFound, ErrMsgTargetNotInGuild), nil
	}
	if target == g.LeaderIdentity {
		return fail(KindPermissionDenied, ErrMsgCannotKickLeader), nil
	}
	if tm.RankPriority >= km.RankPriority {
		return fail(KindPermissionDenied, ErrMsgTargetHigherRank), nil
	}
	removed, err := s.store.RemoveMember(ctx, g.ID, target)
	if err != nil {
		return Result{}, err
	}
	s.cache.InvalidateMember(target, g.ID)
	if !removed {
		return fail(KindNotFound, ErrMsgTargetNotInGuild), nil
	}
	s.emit(ctx, g, hook.Event{Kind: hook.MemberKicked, Identity: target, ActorIdentity: kicker})
	return success(MsgKicked).With("player", tm.DisplayName), nil
}

// Promote moves target one rank up, never to or past actor's rank.
func (s *Service) Promote(ctx context.Context, actor, target int64) (Result, error) {
	return s.changeRank(ctx, actor, target, true)
}

// Demote moves target one rank down.
func (s *Service) Demote(ctx context.Context, actor, target int64) (Result, error) {
	return s.changeRank(ctx, actor, target, false)
}

func (s *Service) changeRank(ctx context.Context, actor, target int64, up bool) (Result, error) {
	flag, denied := PermPromote, ErrMsgNoPermPromote
	if !up {
		flag, denied = PermDemote, ErrMsgNoPermDemote
	}
	g, am, res, err := s.authorize(ctx, actor, flag, denied)
	if err != nil || !res.OK() {
		return res, err
	}
	if target == actor {
		return fail(KindValidation, ErrMsgCannotTargetSelf), nil
	}
	tm := g.Member(target)
	if tm == nil {
		return fail(KindNotFound, ErrMsgTargetNotInGuild), nil
	}
	if _, ok := s.ranks.RankFor(tm.RankPriority); !ok {
		return fail(KindNotFound, ErrMsgInvalidRank), nil
	}

	var next Rank
	if up {
		next, err = s.ranks.NextPromotion(am.RankPriority, tm.RankPriority)
	} else {
		next, err = s.ranks.NextDemotion(am.RankPriority, tm.RankPriority)
	}
	switch {
	case errors.Is(err, ErrTargetHigherRank):
		return fail(KindPermissionDenied, ErrMsgTargetHigherRank), nil
	case errors.Is(err, ErrNoHigherRank):
		return fail(KindConflict, ErrMsgNoHigherRank), nil
	case errors.Is(err, ErrNoLowerRank):
		return fail(KindConflict, ErrMsgNoLowerRank), nil
	case err != nil:
		return Result{}, err
	}

	updated, err := s.store.UpdateMemberRank(ctx, g.ID, target, next.Priority)
	if err != nil {
		return Result{}, err
	}
	s.cache.InvalidateMember(target, g.ID)
	if !updated {
		return fail(KindNotFound, ErrMsgTargetNotInGuild), nil
	}

	kind, msg := hook.MemberPromoted, MsgPromoted
	if !up {
		kind, msg = hook.MemberDemoted, MsgDemoted
	}
	s.emit(ctx, g, hook.Event{Kind: kind, Identity: target, ActorIdentity: actor, RankPriority: next.Priority})
	return success(msg).With("player", tm.DisplayName).With("rank", next.Name), nil
}

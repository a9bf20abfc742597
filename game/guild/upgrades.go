package guild

import (
	"context"

	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
)

// PurchaseUpgrade buys the next level of t for actor's guild out of the
// guild bank.
func (s *Service) PurchaseUpgrade(ctx context.Context, actor int64, t model.UpgradeType) (Result, error) {
	g, _, res, err := s.authorize(ctx, actor, PermUpgrade, ErrMsgNoPermUpgrade)
	if err != nil || !res.OK() {
		return res, err
	}
	level, cost, res, err := s.progression.PurchaseUpgrade(ctx, g.ID, t)
	if err != nil || !res.OK() {
		return res, err
	}
	balance, _ := res.Args["balance"].(int64)
	s.emit(ctx, g, hook.Event{
		Kind: hook.UpgradePurchased, ActorIdentity: actor, Level: level,
		Amount: -cost, Balance: balance, Detail: t.String(),
	})
	return res, nil
}

// BuyPerk buys or levels up a perk for actor's guild, paid from actor's
// wallet.
func (s *Service) BuyPerk(ctx context.Context, actor int64, perkID string) (Result, error) {
	g, _, res, err := s.authorize(ctx, actor, PermManagePerks, ErrMsgNoPermPerks)
	if err != nil || !res.OK() {
		return res, err
	}
	_, res, err = s.PurchaseOrUpgradePerk(ctx, g.ID, perkID, actor)
	return res, err
}

// TogglePerkFor flips a perk of actor's guild.
func (s *Service) TogglePerkFor(ctx context.Context, actor int64, perkID string) (Result, error) {
	g, _, res, err := s.authorize(ctx, actor, PermManagePerks, ErrMsgNoPermPerks)
	if err != nil || !res.OK() {
		return res, err
	}
	_, res, err = s.TogglePerk(ctx, g.ID, perkID)
	return res, err
}

// RegisterPerk adds a perk definition for every guild.
func (s *Service) RegisterPerk(def PerkDefinition) error { return s.perks.Register(def) }

func (s *Service) UnregisterPerk(id string) bool { return s.perks.Unregister(id) }

func (s *Service) ListRegisteredPerks() []*PerkDefinition { return s.perks.List() }

// GetPerkLevel is 0 for unknown guilds and unregistered perks.
func (s *Service) GetPerkLevel(ctx context.Context, guildID int64, perkID string) (int, error) {
	g, err := s.cache.Get(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return s.perks.Level(g, perkID), nil
}

func (s *Service) IsPerkActive(ctx context.Context, guildID int64, perkID string) (bool, error) {
	g, err := s.cache.Get(ctx, guildID)
	if err != nil {
		return false, err
	}
	return s.perks.Active(g, perkID), nil
}

// PurchaseOrUpgradePerk is the boundary API for perk providers; it does
// not check rank permissions.
func (s *Service) PurchaseOrUpgradePerk(ctx context.Context, guildID int64, perkID string, buyer int64) (int, Result, error) {
	level, res, err := s.progression.PurchaseOrUpgradePerk(ctx, guildID, perkID, buyer)
	if err != nil || !res.OK() {
		return level, res, err
	}
	g, _ := s.cache.Get(ctx, guildID)
	cost, _ := res.Args["cost"].(int64)
	s.emit(ctx, orStub(g, guildID), hook.Event{
		Kind: hook.PerkPurchased, ActorIdentity: buyer, Level: level, Amount: cost, Detail: perkID,
	})
	return level, res, nil
}

// TogglePerk is the boundary API for flipping a perk.
func (s *Service) TogglePerk(ctx context.Context, guildID int64, perkID string) (bool, Result, error) {
	enabled, res, err := s.progression.TogglePerk(ctx, guildID, perkID)
	if err != nil || !res.OK() {
		return enabled, res, err
	}
	g, _ := s.cache.Get(ctx, guildID)
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.emit(ctx, orStub(g, guildID), hook.Event{Kind: hook.PerkToggled, Detail: perkID, Reason: state})
	return enabled, res, nil
}

// DispatchPerkHook runs h for the active perks of identity's guild.
func (s *Service) DispatchPerkHook(ctx context.Context, identity int64, h PerkHook) (int, error) {
	g, err := s.cache.GetByIdentity(ctx, identity)
	if err != nil || g == nil {
		return 0, err
	}
	return s.perks.Dispatch(ctx, g, identity, h), nil
}

func orStub(g *model.Guild, id int64) *model.Guild {
	if g == nil {
		return &model.Guild{ID: id}
	}
	return g
}

package guild

import (
	"context"
	"errors"
	"math"

	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/economy"
	"github.com/kasuganosora/guildserver/model"
	"go.uber.org/zap"
)

const interestPageSize = 100

// UpgradeCost is the price of buying the level after current, or -1 when
// current is already the max.
func UpgradeCost(s config.UpgradeSettings, current int) int64 {
	if current >= s.MaxLevel {
		return -1
	}
	return LevelCost(s.BaseCost, s.CostMultiplier, current+1)
}

// InterestCredit records one guild's payout from an interest sweep.
type InterestCredit struct {
	GuildID  int64
	Interest int64
	Balance  int64
}

// ProgressionEngine owns upgrade purchases, derived guild stats, perk
// purchases and the bank interest sweep.
type ProgressionEngine struct {
	store      Store
	cache      *GuildCache
	wallet     economy.Wallet
	walletKind string
	perks      *PerkRegistry
	upgrades   config.UpgradesConfig
	settings   [model.NumUpgradeTypes]config.UpgradeSettings
	baseSlots  int
	slotCap    int
	logger     *zap.Logger
}

func NewProgressionEngine(store Store, cache *GuildCache, wallet economy.Wallet, perks *PerkRegistry,
	guildCfg config.GuildConfig, upgrades config.UpgradesConfig, logger *zap.Logger) *ProgressionEngine {
	e := &ProgressionEngine{
		store:      store,
		cache:      cache,
		wallet:     wallet,
		walletKind: guildCfg.WalletKind,
		perks:      perks,
		upgrades:   upgrades,
		baseSlots:  guildCfg.DefaultSlots,
		slotCap:    guildCfg.MaxSlots,
		logger:     logger,
	}
	e.settings[model.UpgradeSlots] = upgrades.Slots.UpgradeSettings
	e.settings[model.UpgradeBankCapacity] = upgrades.BankCapacity.UpgradeSettings
	e.settings[model.UpgradeXPBoost] = upgrades.XPBoost.UpgradeSettings
	e.settings[model.UpgradeBankInterest] = upgrades.BankInterest.UpgradeSettings
	return e
}

// Settings returns the configured settings of t.
func (e *ProgressionEngine) Settings(t model.UpgradeType) (config.UpgradeSettings, bool) {
	if !t.Valid() {
		return config.UpgradeSettings{}, false
	}
	return e.settings[t], true
}

// Cost is the price of the next level of t for g, -1 at max or for an
// unknown type.
func (e *ProgressionEngine) Cost(g *model.Guild, t model.UpgradeType) int64 {
	s, ok := e.Settings(t)
	if !ok {
		return -1
	}
	return UpgradeCost(s, g.UpgradeLevel(t))
}

func (e *ProgressionEngine) slotsAt(level int) int {
	n := e.baseSlots + level*e.upgrades.Slots.SlotsPerLevel
	if e.slotCap > 0 && n > e.slotCap {
		n = e.slotCap
	}
	return n
}

func (e *ProgressionEngine) capacityAt(level int) int64 {
	return e.upgrades.BankCapacity.BaseCapacity + int64(level)*e.upgrades.BankCapacity.CapacityPerLevel
}

// MaxSlots is the member limit of g.
func (e *ProgressionEngine) MaxSlots(g *model.Guild) int {
	return e.slotsAt(g.UpgradeLevel(model.UpgradeSlots))
}

// MaxBankCapacity is the bank balance ceiling of g.
func (e *ProgressionEngine) MaxBankCapacity(g *model.Guild) int64 {
	return e.capacityAt(g.UpgradeLevel(model.UpgradeBankCapacity))
}

func (e *ProgressionEngine) XPBoostPercent(g *model.Guild) int {
	return g.UpgradeLevel(model.UpgradeXPBoost) * e.upgrades.XPBoost.BoostPerLevel
}

func (e *ProgressionEngine) InterestPercent(g *model.Guild) float64 {
	return float64(g.UpgradeLevel(model.UpgradeBankInterest)) * e.upgrades.BankInterest.InterestPerLevel
}

// PurchaseUpgrade pays for the next level of t out of the guild bank. The
// level is re-read under the guild lock, and the debit and level change
// commit together. Permission checks are the caller's.
func (e *ProgressionEngine) PurchaseUpgrade(ctx context.Context, guildID int64, t model.UpgradeType) (level int, cost int64, res Result, err error) {
	s, ok := e.Settings(t)
	if !ok {
		return 0, 0, fail(KindValidation, ErrMsgUpgradeUnknown), nil
	}
	if !s.Enabled {
		return 0, 0, fail(KindValidation, ErrMsgUpgradeDisabled).With("upgrade", t.String()), nil
	}

	err = e.store.Transaction(ctx, func(tx Store) error {
		g, err := tx.LockGuild(ctx, guildID)
		if err != nil {
			return err
		}
		if g == nil {
			res = fail(KindNotFound, ErrMsgGuildNotFound)
			return errRollback
		}
		current, err := tx.GetUpgradeLevel(ctx, guildID, t)
		if err != nil {
			return err
		}
		level = current
		cost = UpgradeCost(s, current)
		if cost < 0 {
			res = fail(KindConflict, ErrMsgUpgradeMaxLevel).With("upgrade", t.String()).With("level", current)
			return errRollback
		}
		balance, debitRes, err := debit(ctx, tx, guildID, cost)
		if err != nil {
			return err
		}
		if !debitRes.OK() {
			res = debitRes
			if debitRes.Kind == KindInsufficientFunds {
				res = fail(KindInsufficientFunds, ErrMsgUpgradeInsufficient).
					With("cost", cost).With("balance", balance)
			}
			return errRollback
		}
		level = current + 1
		if err := tx.SetUpgradeLevel(ctx, guildID, t, level); err != nil {
			return err
		}
		res = success(MsgUpgradeBought).With("upgrade", t.String()).With("level", level).
			With("cost", cost).With("balance", balance)
		return nil
	})
	if errors.Is(err, errRollback) {
		return level, cost, res, nil
	}
	if err != nil {
		return 0, 0, Result{}, err
	}
	e.cache.InvalidateGuild(guildID)
	e.logger.Info("upgrade purchased",
		zap.Int64("guild_id", guildID), zap.Stringer("upgrade", t), zap.Int("level", level), zap.Int64("cost", cost))
	return level, cost, res, nil
}

// PurchaseOrUpgradePerk charges buyer's wallet and raises the perk one
// level. The wallet is refunded if the level change does not commit.
func (e *ProgressionEngine) PurchaseOrUpgradePerk(ctx context.Context, guildID int64, perkID string, buyer int64) (int, Result, error) {
	def, ok := e.perks.Lookup(perkID)
	if !ok {
		return 0, fail(KindNotFound, ErrMsgPerkNotFound).With("perk", perkID), nil
	}
	g, err := e.cache.Get(ctx, guildID)
	if err != nil {
		return 0, Result{}, err
	}
	if g == nil {
		return 0, fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	p, err := e.store.GetPerk(ctx, guildID, perkID)
	if err != nil {
		return 0, Result{}, err
	}
	current := 0
	if p != nil {
		current = p.Level
	}
	if def.Type == PerkPurchasable && current >= 1 {
		return current, fail(KindConflict, ErrMsgPerkAlreadyPurchased).With("perk", def.Name), nil
	}
	if current >= def.MaxLevel {
		return current, fail(KindConflict, ErrMsgPerkMaxLevel).With("perk", def.Name).With("level", current), nil
	}

	next := current + 1
	cost := def.CostFor(next)
	if cost > 0 {
		if res, err := e.charge(ctx, buyer, cost); err != nil || !res.OK() {
			return current, res, err
		}
	}
	applied, err := e.store.SetPerkLevel(ctx, guildID, perkID, current, next)
	if err != nil || !applied {
		if cost > 0 {
			e.refund(ctx, buyer, cost, "perk")
		}
		if err != nil {
			return current, Result{}, err
		}
		return current, fail(KindConflict, ErrMsgPerkAlreadyPurchased).With("perk", def.Name), nil
	}
	e.cache.InvalidateGuild(guildID)

	msg := MsgPerkPurchased
	if next > 1 {
		msg = MsgPerkUpgraded
	}
	return next, success(msg).With("perk", def.Name).With("level", next).With("cost", cost), nil
}

// TogglePerk flips a purchased, togglable perk on or off.
func (e *ProgressionEngine) TogglePerk(ctx context.Context, guildID int64, perkID string) (bool, Result, error) {
	def, ok := e.perks.Lookup(perkID)
	if !ok {
		return false, fail(KindNotFound, ErrMsgPerkNotFound).With("perk", perkID), nil
	}
	if def.Type != PerkPurchasable {
		return false, fail(KindValidation, ErrMsgPerkNotTogglable).With("perk", def.Name), nil
	}
	var enabled bool
	var res Result
	err := e.store.Transaction(ctx, func(tx Store) error {
		if _, err := tx.LockGuild(ctx, guildID); err != nil {
			return err
		}
		p, err := tx.GetPerk(ctx, guildID, perkID)
		if err != nil {
			return err
		}
		if p == nil || p.Level <= 0 {
			res = fail(KindNotFound, ErrMsgPerkNotOwned).With("perk", def.Name)
			return errRollback
		}
		enabled = !p.Enabled
		return tx.SetPerkEnabled(ctx, guildID, perkID, enabled)
	})
	if errors.Is(err, errRollback) {
		return false, res, nil
	}
	if err != nil {
		return false, Result{}, err
	}
	e.cache.InvalidateGuild(guildID)
	return enabled, success(MsgPerkToggled).With("perk", def.Name).With("enabled", enabled), nil
}

func (e *ProgressionEngine) charge(ctx context.Context, identity, cost int64) (Result, error) {
	if e.wallet == nil {
		return fail(KindServiceUnavailable, ErrMsgEconomyUnavailable), nil
	}
	balance, err := e.wallet.GetBalance(ctx, identity, e.walletKind)
	if err != nil {
		return Result{}, err
	}
	if balance < cost {
		return fail(KindInsufficientFunds, ErrMsgNotEnoughCurrency).With("cost", cost).With("balance", balance), nil
	}
	if err := e.wallet.SubtractBalance(ctx, identity, e.walletKind, cost); err != nil {
		if errors.Is(err, economy.ErrInsufficientFunds) {
			return fail(KindInsufficientFunds, ErrMsgNotEnoughCurrency).With("cost", cost), nil
		}
		return Result{}, err
	}
	return Result{}, nil
}

func (e *ProgressionEngine) refund(ctx context.Context, identity, amount int64, what string) {
	if err := e.wallet.AddBalance(ctx, identity, e.walletKind, amount); err != nil {
		e.logger.Error("wallet refund failed",
			zap.String("for", what), zap.Int64("identity", identity), zap.Int64("amount", amount), zap.Error(err))
	}
}

// ApplyInterest pays interest into every guild bank. Each guild is
// recomputed under its own lock and clamped to its capacity; a failing
// guild is logged and skipped.
func (e *ProgressionEngine) ApplyInterest(ctx context.Context) ([]InterestCredit, error) {
	var credits []InterestCredit
	var after int64
	for {
		ids, err := e.store.GuildIDsAfter(ctx, after, interestPageSize)
		if err != nil {
			return credits, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return credits, err
			}
			c, ok, err := e.applyInterestTo(ctx, id)
			if err != nil {
				e.logger.Warn("interest failed", zap.Int64("guild_id", id), zap.Error(err))
				continue
			}
			if ok {
				e.cache.InvalidateGuild(id)
				credits = append(credits, c)
			}
		}
		if len(ids) < interestPageSize {
			return credits, nil
		}
		after = ids[len(ids)-1]
	}
}

func (e *ProgressionEngine) applyInterestTo(ctx context.Context, guildID int64) (InterestCredit, bool, error) {
	var credit InterestCredit
	var paid bool
	err := e.store.Transaction(ctx, func(tx Store) error {
		g, err := tx.LockGuild(ctx, guildID)
		if err != nil || g == nil {
			return err
		}
		rateLevel, err := tx.GetUpgradeLevel(ctx, guildID, model.UpgradeBankInterest)
		if err != nil {
			return err
		}
		pct := float64(rateLevel) * e.upgrades.BankInterest.InterestPerLevel
		if pct <= 0 || g.BankBalance <= 0 {
			return nil
		}
		capLevel, err := tx.GetUpgradeLevel(ctx, guildID, model.UpgradeBankCapacity)
		if err != nil {
			return err
		}
		interest := int64(math.Floor(float64(g.BankBalance) * pct / 100))
		if interest <= 0 {
			return nil
		}
		capacity := e.capacityAt(capLevel)
		balance := g.BankBalance + interest
		if balance < g.BankBalance || balance > capacity {
			balance = capacity
		}
		if balance <= g.BankBalance {
			return nil
		}
		if err := tx.SetBankBalance(ctx, guildID, balance); err != nil {
			return err
		}
		credit = InterestCredit{GuildID: guildID, Interest: balance - g.BankBalance, Balance: balance}
		paid = true
		return nil
	})
	return credit, paid, err
}

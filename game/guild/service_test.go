package guild

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/economy"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

const credits = "credits"

type fixture struct {
	svc    *Service
	store  *GormStore
	wallet *economy.MemoryWallet
	bus    *hook.Bus
	clk    *testClock
}

func newFixture(t *testing.T, tweak ...func(*config.GuildConfig)) *fixture {
	t.Helper()
	cfg := config.DefaultGuild()
	for _, fn := range tweak {
		fn(&cfg)
	}
	f := &fixture{
		store:  newTestStore(t),
		wallet: economy.NewMemoryWallet(),
		bus:    hook.NewBus(nop()),
		clk:    newTestClock(),
	}
	svc, err := NewService(f.store, f.wallet, f.bus, cfg, config.DefaultUpgrades(), nop(), WithClock(f.clk.Now))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func (f *fixture) fund(t *testing.T, identity, amount int64) {
	t.Helper()
	require.NoError(t, f.wallet.AddBalance(context.Background(), identity, credits, amount))
}

func (f *fixture) balance(t *testing.T, identity int64) int64 {
	t.Helper()
	b, err := f.wallet.GetBalance(context.Background(), identity, credits)
	require.NoError(t, err)
	return b
}

// create founds a guild for leader, funding the creation cost first.
func (f *fixture) create(t *testing.T, leader int64, name string) *model.Guild {
	t.Helper()
	f.fund(t, leader, f.svc.cfg.CreationCost)
	g, res, err := f.svc.Create(context.Background(), Player{Identity: leader, Name: "lead"}, name, "T")
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	return g
}

// join invites and accepts identity into leader's guild.
func (f *fixture) join(t *testing.T, leader, identity int64) {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Invite(ctx, leader, Player{Identity: identity, Name: "p"})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	res, err = f.svc.AcceptInvite(ctx, Player{Identity: identity, Name: "p"})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
}

func (f *fixture) count(kind hook.Kind) *atomic.Int32 {
	var n atomic.Int32
	f.bus.Subscribe(kind, 0, "count", func(context.Context, hook.Event) { n.Add(1) })
	return &n
}

func TestCreate_ChargesWalletAndRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.count(hook.GuildCreated)
	f.fund(t, 1, 5000)
	f.fund(t, 2, 5000)

	g, res, err := f.svc.Create(ctx, Player{Identity: 1, Name: "one"}, "Alpha", "A")
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "Alpha", g.Name)
	assert.Zero(t, f.balance(t, 1))
	assert.EqualValues(t, 1, created.Load())

	_, res, err = f.svc.Create(ctx, Player{Identity: 2, Name: "two"}, "Alpha", "B")
	require.NoError(t, err)
	assert.Equal(t, KindConflict, res.Kind)
	assert.Equal(t, ErrMsgNameTaken, res.Message)
	assert.Equal(t, int64(5000), f.balance(t, 2), "rejected before charging")

	mine, err := f.svc.GetPlayerGuild(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, mine)
	info, err := f.svc.GetMember(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "leader", info.Rank.Name)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 100000)
	ctx := context.Background()
	cases := []struct {
		name, tag, want string
	}{
		{"", "A", ErrMsgNameEmpty},
		{" Alpha", "A", ErrMsgNameWhitespace},
		{"Al!pha", "A", ErrMsgNameInvalidChars},
		{"Ab", "A", ErrMsgNameTooShort},
		{"Abcdefghijklmnopqrstuvwxyz0123456", "A", ErrMsgNameTooLong},
		{"Alpha", "", ErrMsgTagEmpty},
		{"Alpha", "A B", ErrMsgTagInvalidChars},
		{"Alpha", "ABCDE", ErrMsgTagTooLong},
	}
	for _, c := range cases {
		_, res, err := f.svc.Create(ctx, Player{Identity: 1}, c.name, c.tag)
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind, c.name)
		assert.Equal(t, c.want, res.Message, c.name)
	}
	assert.Equal(t, int64(100000), f.balance(t, 1))
}

func TestCreate_NameLengthCountsRunes(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 5000)
	_, res, err := f.svc.Create(context.Background(), Player{Identity: 1}, "龍之谷", "龍")
	require.NoError(t, err)
	assert.True(t, res.OK(), res.Message)
}

func TestCreate_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 100)
	_, res, err := f.svc.Create(context.Background(), Player{Identity: 1}, "Alpha", "A")
	require.NoError(t, err)
	assert.Equal(t, KindInsufficientFunds, res.Kind)
	assert.Equal(t, int64(100), f.balance(t, 1))

	g, err := f.svc.GetGuildByName(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestCreate_AlreadyInGuild(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, "Alpha")
	f.fund(t, 1, 5000)
	_, res, err := f.svc.Create(context.Background(), Player{Identity: 1}, "Beta", "B")
	require.NoError(t, err)
	assert.Equal(t, ErrMsgAlreadyInGuild, res.Message)
}

func TestCreate_FreeWithoutWallet(t *testing.T) {
	cfg := config.DefaultGuild()
	cfg.CreationCost = 0
	svc, err := NewService(newTestStore(t), nil, nil, cfg, config.DefaultUpgrades(), nop())
	require.NoError(t, err)
	defer svc.Close()

	_, res, err := svc.Create(context.Background(), Player{Identity: 1}, "Alpha", "A")
	require.NoError(t, err)
	assert.True(t, res.OK())

	res, err = svc.Deposit(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, KindServiceUnavailable, res.Kind)
}

func TestInviteAccept_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	joined := f.count(hook.MemberJoined)

	// Warm both keyspaces so the accept must invalidate them.
	before, err := f.svc.GetPlayerGuild(ctx, 7)
	require.NoError(t, err)
	require.Nil(t, before)
	cached, err := f.svc.GetGuild(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, cached.Members, 1)

	res, err := f.svc.Invite(ctx, 1, Player{Identity: 7, Name: "P"})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.True(t, f.svc.Invites().HasPending(7))

	res, err = f.svc.AcceptInvite(ctx, Player{Identity: 7, Name: "P"})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.EqualValues(t, 1, joined.Load())
	assert.False(t, f.svc.Invites().HasPending(7))

	after, err := f.svc.GetPlayerGuild(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, g.ID, after.ID)
	info, err := f.svc.GetMember(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "member", info.Rank.Name)
	full, err := f.svc.GetGuild(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, full.Members, 2)
}

func TestEventsSeeFreshCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	_, _ = f.svc.GetPlayerGuild(ctx, 7)

	var seen *model.Guild
	f.bus.Subscribe(hook.MemberJoined, 0, "cache-check", func(ctx context.Context, ev hook.Event) {
		seen, _ = f.svc.GetPlayerGuild(ctx, ev.Identity)
	})
	f.join(t, 1, 7)
	assert.NotNil(t, seen)
}

func TestInvite_Rejections(t *testing.T) {
	f := newFixture(t, func(c *config.GuildConfig) { c.DefaultSlots = 2 })
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	f.create(t, 9, "Other")
	f.join(t, 1, 2)

	res, err := f.svc.Invite(ctx, 2, Player{Identity: 3})
	require.NoError(t, err)
	assert.Equal(t, KindPermissionDenied, res.Kind, "members cannot invite")

	res, _ = f.svc.Invite(ctx, 1, Player{Identity: 9})
	assert.Equal(t, ErrMsgTargetInGuild, res.Message)

	res, _ = f.svc.Invite(ctx, 5, Player{Identity: 3})
	assert.Equal(t, ErrMsgNotInGuild, res.Message)

	res, _ = f.svc.Invite(ctx, 1, Player{Identity: 3})
	assert.Equal(t, ErrMsgGuildFull, res.Message)

	res, _ = f.svc.Invite(ctx, 9, Player{Identity: 3})
	require.True(t, res.OK())
	res, _ = f.svc.Invite(ctx, 9, Player{Identity: 3})
	assert.Equal(t, ErrMsgTargetHasInvite, res.Message)
}

func TestAcceptInvite_FullGuildAutoDeclines(t *testing.T) {
	f := newFixture(t, func(c *config.GuildConfig) { c.DefaultSlots = 2 })
	ctx := context.Background()
	f.create(t, 1, "Alpha")

	for _, id := range []int64{7, 8} {
		res, err := f.svc.Invite(ctx, 1, Player{Identity: id})
		require.NoError(t, err)
		require.True(t, res.OK())
	}
	res, err := f.svc.AcceptInvite(ctx, Player{Identity: 7})
	require.NoError(t, err)
	require.True(t, res.OK())

	res, err = f.svc.AcceptInvite(ctx, Player{Identity: 8})
	require.NoError(t, err)
	assert.Equal(t, ErrMsgTargetGuildFull, res.Message)
	assert.False(t, f.svc.Invites().HasPending(8))
}

func TestAcceptInvite_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	res, _ := f.svc.Invite(ctx, 1, Player{Identity: 7})
	require.True(t, res.OK())

	f.clk.Advance(61 * time.Second)
	res, err := f.svc.AcceptInvite(ctx, Player{Identity: 7})
	require.NoError(t, err)
	assert.Equal(t, ErrMsgNoPendingInvite, res.Message)
}

func TestDeclineInvite(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, "Alpha")
	res, _ := f.svc.Invite(context.Background(), 1, Player{Identity: 7})
	require.True(t, res.OK())

	assert.True(t, f.svc.DeclineInvite(7).OK())
	assert.Equal(t, KindNotFound, f.svc.DeclineInvite(7).Kind)
}

func TestDisband_RemovesInvitesAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	res, _ := f.svc.Invite(ctx, 1, Player{Identity: 3})
	require.True(t, res.OK())
	disbanded := f.count(hook.GuildDisbanded)

	for _, id := range []int64{1, 2} {
		got, _ := f.svc.GetPlayerGuild(ctx, id)
		require.NotNil(t, got)
	}

	res, err := f.svc.Disband(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, ErrMsgNotLeader, res.Message)

	res, err = f.svc.Disband(ctx, 1)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.EqualValues(t, 1, disbanded.Load())
	assert.False(t, f.svc.Invites().HasPending(3))

	for _, id := range []int64{1, 2} {
		got, err := f.svc.GetPlayerGuild(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	gone, err := f.svc.GetGuild(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	res, _ = f.svc.AcceptInvite(ctx, Player{Identity: 3})
	assert.Equal(t, ErrMsgNoPendingInvite, res.Message)
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	left := f.count(hook.MemberLeft)

	res, err := f.svc.Leave(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ErrMsgLeaderCannotLeave, res.Message)

	res, err = f.svc.Leave(ctx, 2)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.EqualValues(t, 1, left.Load())
	in, _ := f.svc.IsInGuild(ctx, 2)
	assert.False(t, in)

	res, _ = f.svc.Leave(ctx, 2)
	assert.Equal(t, ErrMsgNotInGuild, res.Message)
}

func TestKick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	f.join(t, 1, 3)
	f.join(t, 1, 4)
	res, _ := f.svc.Promote(ctx, 1, 2)
	require.True(t, res.OK())
	res, _ = f.svc.Promote(ctx, 1, 3)
	require.True(t, res.OK())
	kicked := f.count(hook.MemberKicked)

	res, _ = f.svc.Kick(ctx, 4, 3)
	assert.Equal(t, KindPermissionDenied, res.Kind, "member lacks kick")

	res, _ = f.svc.Kick(ctx, 2, 1)
	assert.Equal(t, ErrMsgCannotKickLeader, res.Message)

	res, _ = f.svc.Kick(ctx, 2, 3)
	assert.Equal(t, ErrMsgTargetHigherRank, res.Message, "equal rank cannot be kicked")

	res, _ = f.svc.Kick(ctx, 2, 99)
	assert.Equal(t, ErrMsgTargetNotInGuild, res.Message)

	res, err := f.svc.Kick(ctx, 2, 4)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.EqualValues(t, 1, kicked.Load())
	in, _ := f.svc.IsInGuild(ctx, 4)
	assert.False(t, in)
}

func TestPromoteDemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	promoted := f.count(hook.MemberPromoted)

	res, err := f.svc.Promote(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, res.OK())
	info, _ := f.svc.GetMember(ctx, 2)
	assert.Equal(t, 50, info.RankPriority)
	assert.EqualValues(t, 1, promoted.Load())

	res, _ = f.svc.Promote(ctx, 1, 2)
	assert.Equal(t, ErrMsgNoHigherRank, res.Message)

	res, _ = f.svc.Demote(ctx, 2, 1)
	assert.Equal(t, ErrMsgTargetHigherRank, res.Message)

	res, _ = f.svc.Demote(ctx, 1, 2)
	require.True(t, res.OK())
	info, _ = f.svc.GetMember(ctx, 2)
	assert.Equal(t, 0, info.RankPriority)

	res, _ = f.svc.Demote(ctx, 1, 2)
	assert.Equal(t, ErrMsgNoLowerRank, res.Message)

	res, _ = f.svc.Promote(ctx, 2, 1)
	assert.Equal(t, KindPermissionDenied, res.Kind)
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	f.create(t, 5, "Taken")
	f.join(t, 1, 2)
	f.fund(t, 1, 100)

	res, _ := f.svc.Rename(ctx, 2, "Beta", 0)
	assert.Equal(t, ErrMsgNotLeader, res.Message)

	res, _ = f.svc.Rename(ctx, 1, "Taken", 0)
	assert.Equal(t, ErrMsgNameTaken, res.Message)

	res, err := f.svc.Rename(ctx, 1, "Alpha", 0)
	require.NoError(t, err)
	assert.True(t, res.OK(), "own name is allowed")

	res, err = f.svc.Rename(ctx, 1, "Beta", 100)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Zero(t, f.balance(t, 1))
	got, _ := f.svc.GetGuild(ctx, g.ID)
	assert.Equal(t, "Beta", got.Name)

	res, _ = f.svc.Rename(ctx, 1, "Gamma", 100)
	assert.Equal(t, KindInsufficientFunds, res.Kind)
}

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	f.fund(t, 1, 20000)
	changes := f.count(hook.BankChanged)

	res, err := f.svc.Deposit(ctx, 1, 3000)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, int64(17000), f.balance(t, 1))

	res, err = f.svc.Deposit(ctx, 1, 8000)
	require.NoError(t, err)
	assert.Equal(t, KindCapacityExceeded, res.Kind)
	assert.Equal(t, int64(17000), f.balance(t, 1), "wallet refunded")

	res, _ = f.svc.Deposit(ctx, 1, 0)
	assert.Equal(t, KindValidation, res.Kind)
	res, _ = f.svc.Deposit(ctx, 2, 10)
	assert.Equal(t, KindInsufficientFunds, res.Kind)

	res, _ = f.svc.Withdraw(ctx, 2, 10)
	assert.Equal(t, KindPermissionDenied, res.Kind)

	res, _ = f.svc.Withdraw(ctx, 1, 5000)
	assert.Equal(t, KindInsufficientFunds, res.Kind)

	res, err = f.svc.Withdraw(ctx, 1, 1000)
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, int64(18000), f.balance(t, 1))
	got, _ := f.svc.GetGuild(ctx, g.ID)
	assert.Equal(t, int64(2000), got.BankBalance)
	assert.EqualValues(t, 2, changes.Load())
}

func TestExternalBankAPI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	var reason string
	f.bus.Subscribe(hook.BankChanged, 0, "reason", func(_ context.Context, ev hook.Event) { reason = ev.Reason })

	res, err := f.svc.AddToBank(ctx, g.ID, 500, "quest_reward")
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "quest_reward", reason)

	res, _ = f.svc.AddToBank(ctx, g.ID, 10000, "too_much")
	assert.Equal(t, KindCapacityExceeded, res.Kind)

	res, _ = f.svc.RemoveFromBank(ctx, g.ID, 200, "fine")
	require.True(t, res.OK())
	got, _ := f.svc.GetGuild(ctx, g.ID)
	assert.Equal(t, int64(300), got.BankBalance)

	res, _ = f.svc.AddToBank(ctx, g.ID+99, 1, "x")
	assert.Equal(t, KindNotFound, res.Kind)
}

func TestPurchaseUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.create(t, 1, "Alpha")
	f.join(t, 1, 2)
	res, _ := f.svc.Promote(ctx, 1, 2)
	require.True(t, res.OK())
	require.NoError(t, f.store.SetBankBalance(ctx, g.ID, 2000))
	f.svc.Cache().InvalidateGuild(g.ID)
	bought := f.count(hook.UpgradePurchased)

	res, _ = f.svc.PurchaseUpgrade(ctx, 2, model.UpgradeSlots)
	assert.Equal(t, KindPermissionDenied, res.Kind, "officers lack upgrade")

	res, err := f.svc.PurchaseUpgrade(ctx, 1, model.UpgradeSlots)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.EqualValues(t, 1, bought.Load())

	got, _ := f.svc.GetGuild(ctx, g.ID)
	assert.Equal(t, 1, f.svc.GetUpgradeLevel(got, model.UpgradeSlots))
	assert.Equal(t, int64(1000), got.BankBalance)
	assert.Equal(t, 7, f.svc.MaxSlots(got))
	assert.Equal(t, int64(1500), f.svc.GetUpgradeCost(got, model.UpgradeSlots))

	res, _ = f.svc.PurchaseUpgrade(ctx, 1, model.UpgradeSlots)
	assert.Equal(t, KindInsufficientFunds, res.Kind)
	got, _ = f.svc.GetGuild(ctx, g.ID)
	assert.Equal(t, int64(1000), got.BankBalance)
	assert.Equal(t, 1, got.UpgradeLevel(model.UpgradeSlots))

	require.NoError(t, f.store.SetUpgradeLevel(ctx, g.ID, model.UpgradeSlots, 5))
	res, _ = f.svc.PurchaseUpgrade(ctx, 1, model.UpgradeSlots)
	assert.Equal(t, ErrMsgUpgradeMaxLevel, res.Message)

	res, _ = f.svc.PurchaseUpgrade(ctx, 1, model.UpgradeType(42))
	assert.Equal(t, ErrMsgUpgradeUnknown, res.Message)
}

func TestDerivedStats(t *testing.T) {
	f := newFixture(t)
	g := &model.Guild{Upgrades: []model.Upgrade{
		{UpgradeType: model.UpgradeSlots, Level: 20},
		{UpgradeType: model.UpgradeBankCapacity, Level: 2},
		{UpgradeType: model.UpgradeXPBoost, Level: 3},
	}}
	assert.Equal(t, 20, f.svc.MaxSlots(g), "clamped to global max")
	assert.Equal(t, int64(20000), f.svc.MaxBankCapacity(g))
	assert.Equal(t, 15, f.svc.XPBoostPercent(g))
	assert.Equal(t, int64(-1), f.svc.GetUpgradeCost(&model.Guild{Upgrades: []model.Upgrade{{UpgradeType: model.UpgradeXPBoost, Level: 5}}}, model.UpgradeXPBoost))
}

func TestApplyInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rich := f.create(t, 1, "Alpha")
	capped := f.create(t, 2, "Bravo")
	idle := f.create(t, 3, "Charlie")

	for _, g := range []*model.Guild{rich, capped} {
		require.NoError(t, f.store.SetUpgradeLevel(ctx, g.ID, model.UpgradeBankInterest, 2))
		require.NoError(t, f.store.SetUpgradeLevel(ctx, g.ID, model.UpgradeBankCapacity, 2))
	}
	require.NoError(t, f.store.SetBankBalance(ctx, rich.ID, 10000))
	require.NoError(t, f.store.SetBankBalance(ctx, capped.ID, 19900))
	require.NoError(t, f.store.SetBankBalance(ctx, idle.ID, 5000))

	n, err := f.svc.ApplyInterest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(10200), bankBalance(t, f.store, rich.ID))
	assert.Equal(t, int64(20000), bankBalance(t, f.store, capped.ID))
	assert.Equal(t, int64(5000), bankBalance(t, f.store, idle.ID))

	n, err = f.svc.ApplyInterest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "capped guild is skipped")
}

func TestLevelCost(t *testing.T) {
	assert.Equal(t, int64(1000), LevelCost(1000, 1.5, 0))
	assert.Equal(t, int64(1000), LevelCost(1000, 1.5, 1))
	assert.Equal(t, int64(1500), LevelCost(1000, 1.5, 2))
	assert.Equal(t, int64(2250), LevelCost(1000, 1.5, 3))
	prev := int64(0)
	for lvl := 1; lvl <= 10; lvl++ {
		c := LevelCost(500, 1.3, lvl)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
	s := config.UpgradeSettings{MaxLevel: 2, BaseCost: 100, CostMultiplier: 2}
	assert.Equal(t, int64(100), UpgradeCost(s, 0))
	assert.Equal(t, int64(200), UpgradeCost(s, 1))
	assert.Equal(t, int64(-1), UpgradeCost(s, 2))
}

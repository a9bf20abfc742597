package guild

import (
	"context"
	"time"

	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/economy"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// Player identifies the caller of an operation.
type Player struct {
	Identity int64
	Name     string
}

// MemberInfo is a member row with its resolved rank.
type MemberInfo struct {
	model.Member
	Rank Rank `json:"rank"`
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	now        func() time.Time
	gcInterval time.Duration
}

// WithClock overrides the clock used for invites, cache expiry and events.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithCacheGC starts the cache janitor at the given interval.
func WithCacheGC(interval time.Duration) Option {
	return func(o *serviceOptions) { o.gcInterval = interval }
}

// Service orchestrates guild operations. Methods are safe for concurrent
// use; no global lock serializes them. Expected failures come back as a
// non-OK Result, errors are store or wallet faults.
type Service struct {
	store       Store
	cache       *GuildCache
	invites     *InviteRegistry
	ranks       *RankHierarchy
	ledger      *BankLedger
	progression *ProgressionEngine
	perks       *PerkRegistry
	wallet      economy.Wallet
	bus         *hook.Bus
	cfg         config.GuildConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewService wires the guild core. wallet may be nil, in which case
// anything that costs currency is unavailable.
func NewService(store Store, wallet economy.Wallet, bus *hook.Bus, cfg config.GuildConfig,
	upgrades config.UpgradesConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	ranks, err := NewRankHierarchy(cfg.Ranks)
	if err != nil {
		return nil, err
	}
	gc := NewGuildCache(store, cfg.CacheTTL, o.gcInterval, o.now)
	perks := NewPerkRegistry(logger)
	s := &Service{
		store:       store,
		cache:       gc,
		invites:     NewInviteRegistry(cfg.InviteTTL, o.now),
		ranks:       ranks,
		ledger:      NewBankLedger(store, gc),
		progression: NewProgressionEngine(store, gc, wallet, perks, cfg, upgrades, logger),
		perks:       perks,
		wallet:      wallet,
		bus:         bus,
		cfg:         cfg,
		logger:      logger,
		now:         o.now,
	}
	return s, nil
}

// Close stops background cache maintenance.
func (s *Service) Close() { s.cache.Close() }

func (s *Service) Cache() *GuildCache { return s.cache }
func (s *Service) Invites() *InviteRegistry { return s.invites }
func (s *Service) Ranks() *RankHierarchy { return s.ranks }
func (s *Service) Ledger() *BankLedger { return s.ledger }
func (s *Service) Progression() *ProgressionEngine { return s.progression }
func (s *Service) Perks() *PerkRegistry { return s.perks }
func (s *Service) Config() config.GuildConfig { return s.cfg }
func (s *Service) Bus() *hook.Bus { return s.bus }
func (s *Service) Upgrades() [model.NumUpgradeTypes]config.UpgradeSettings {
	return s.progression.settings
}

// emit publishes ev after the triggering write and invalidation.
func (s *Service) emit(ctx context.Context, g *model.Guild, ev hook.Event) {
	if s.bus == nil {
		return
	}
	if g != nil {
		ev.GuildID = g.ID
		ev.GuildName = g.Name
		ev.GuildTag = g.Tag
	}
	ev.At = s.now()
	s.bus.Publish(ctx, ev)
}

// memberOf resolves identity's guild and member row.
func (s *Service) memberOf(ctx context.Context, identity int64) (*model.Guild, *model.Member, Result, error) {
	g, err := s.cache.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, nil, Result{}, err
	}
	if g == nil {
		return nil, nil, fail(KindNotFound, ErrMsgNotInGuild), nil
	}
	m := g.Member(identity)
	if m == nil {
		return nil, nil, fail(KindNotFound, ErrMsgNotInGuild), nil
	}
	return g, m, Result{}, nil
}

// authorize is memberOf plus a permission check.
func (s *Service) authorize(ctx context.Context, identity int64, flag Permission, denied string) (*model.Guild, *model.Member, Result, error) {
	g, m, res, err := s.memberOf(ctx, identity)
	if err != nil || !res.OK() {
		return g, m, res, err
	}
	if !s.ranks.HasPermission(m.RankPriority, flag) {
		return g, m, fail(KindPermissionDenied, denied), nil
	}
	return g, m, res, nil
}

func (s *Service) GetGuild(ctx context.Context, guildID int64) (*model.Guild, error) {
	return s.cache.Get(ctx, guildID)
}

func (s *Service) GetGuildByName(ctx context.Context, name string) (*model.Guild, error) {
	return s.store.GetGuildByName(ctx, name)
}

// GetPlayerGuild returns identity's guild, or nil.
func (s *Service) GetPlayerGuild(ctx context.Context, identity int64) (*model.Guild, error) {
	return s.cache.GetByIdentity(ctx, identity)
}

func (s *Service) IsInGuild(ctx context.Context, identity int64) (bool, error) {
	g, err := s.cache.GetByIdentity(ctx, identity)
	return g != nil, err
}

// GetMember returns identity's membership, or nil.
func (s *Service) GetMember(ctx context.Context, identity int64) (*MemberInfo, error) {
	_, m, res, err := s.memberOf(ctx, identity)
	if err != nil || !res.OK() {
		return nil, err
	}
	info := &MemberInfo{Member: *m}
	if r, ok := s.ranks.RankFor(m.RankPriority); ok {
		info.Rank = r
	}
	return info, nil
}

func (s *Service) HasPermission(ctx context.Context, identity int64, flag Permission) (bool, error) {
	_, m, res, err := s.memberOf(ctx, identity)
	if err != nil || !res.OK() {
		return false, err
	}
	return s.ranks.HasPermission(m.RankPriority, flag), nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListGuilds pages guilds newest first. page starts at 1.
func (s *Service) ListGuilds(ctx context.Context, page, pageSize int) ([]*model.Guild, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return s.store.ListGuilds(ctx, (page-1)*pageSize, pageSize)
}

func (s *Service) GetUpgradeLevel(g *model.Guild, t model.UpgradeType) int { return g.UpgradeLevel(t) }

// GetUpgradeCost is the next-level price of t for g, -1 at max.
func (s *Service) GetUpgradeCost(g *model.Guild, t model.UpgradeType) int64 {
	return s.progression.Cost(g, t)
}

func (s *Service) MaxSlots(g *model.Guild) int { return s.progression.MaxSlots(g) }
func (s *Service) MaxBankCapacity(g *model.Guild) int64 { return s.progression.MaxBankCapacity(g) }
func (s *Service) XPBoostPercent(g *model.Guild) int { return s.progression.XPBoostPercent(g) }
func (s *Service) InterestPercent(g *model.Guild) float64 { return s.progression.InterestPercent(g) }

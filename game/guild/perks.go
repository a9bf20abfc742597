package guild

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/model"
	"go.uber.org/zap"
)

// PerkType decides how a perk is bought.
type PerkType int

const (
	// PerkPurchasable is bought once (level 0→1) and can be toggled.
	PerkPurchasable PerkType = iota
	// PerkUpgradeable is bought level by level up to MaxLevel.
	PerkUpgradeable
)

func (t PerkType) String() string {
	if t == PerkUpgradeable {
		return "upgradeable"
	}
	return "purchasable"
}

func (t PerkType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParsePerkType resolves a type by its String name.
func ParsePerkType(s string) (PerkType, bool) {
	switch s {
	case "purchasable":
		return PerkPurchasable, true
	case "upgradeable":
		return PerkUpgradeable, true
	}
	return 0, false
}

// PerkHook names a gameplay lifecycle point perks can react to.
type PerkHook int

const (
	HookSpawn PerkHook = iota
	HookDeath
	HookKill
	HookRoundStart
	HookRoundEnd
)

var hookNames = [...]string{"spawn", "death", "kill", "round_start", "round_end"}

func (h PerkHook) String() string {
	if h >= 0 && int(h) < len(hookNames) {
		return hookNames[h]
	}
	return "unknown"
}

// ParsePerkHook resolves a hook by its String name.
func ParsePerkHook(s string) (PerkHook, bool) {
	for i, n := range hookNames {
		if n == s {
			return PerkHook(i), true
		}
	}
	return 0, false
}

// PerkContext is passed to perk callbacks.
type PerkContext struct {
	GuildID  int64
	Identity int64
	Level    int
}

// PerkFunc is a perk lifecycle callback.
type PerkFunc func(ctx context.Context, pc PerkContext)

// PerkDefinition is registered by game code at runtime.
type PerkDefinition struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Type           PerkType `json:"type"`
	MaxLevel       int      `json:"max_level"`
	BaseCost       int64    `json:"base_cost"`
	CostMultiplier float64  `json:"cost_multiplier"`
	// Cost overrides the exponential price curve when set.
	Cost func(level int) int64 `json:"-"`

	OnSpawn      PerkFunc `json:"-"`
	OnDeath      PerkFunc `json:"-"`
	OnKill       PerkFunc `json:"-"`
	OnRoundStart PerkFunc `json:"-"`
	OnRoundEnd   PerkFunc `json:"-"`
}

// CostFor returns the price of reaching level.
func (d *PerkDefinition) CostFor(level int) int64 {
	if d.Cost != nil {
		return d.Cost(level)
	}
	return LevelCost(d.BaseCost, d.CostMultiplier, level)
}

func (d *PerkDefinition) callback(h PerkHook) PerkFunc {
	switch h {
	case HookSpawn:
		return d.OnSpawn
	case HookDeath:
		return d.OnDeath
	case HookKill:
		return d.OnKill
	case HookRoundStart:
		return d.OnRoundStart
	case HookRoundEnd:
		return d.OnRoundEnd
	}
	return nil
}

// LevelCost is the exponential price curve shared by upgrades and perks:
// base for level 1, floor(base*multiplier^(level-1)) above it.
func LevelCost(base int64, multiplier float64, level int) int64 {
	if level <= 1 {
		return base
	}
	c := math.Floor(float64(base)*math.Pow(multiplier, float64(level-1)) + 1e-9)
	if c >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(c)
}

var (
	ErrPerkID       = errors.New("guild: perk id is required")
	ErrPerkMaxLevel = errors.New("guild: upgradeable perk needs max level >= 1")
)

// PerkRegistry holds perk definitions. Registration and lookups are safe
// from any goroutine.
type PerkRegistry struct {
	mu     sync.RWMutex
	perks  map[string]*PerkDefinition
	logger *zap.Logger
}

func NewPerkRegistry(logger *zap.Logger) *PerkRegistry {
	return &PerkRegistry{perks: make(map[string]*PerkDefinition), logger: logger}
}

// Register adds or replaces a definition. Purchasable perks always have a
// max level of 1.
func (r *PerkRegistry) Register(def PerkDefinition) error {
	if def.ID == "" {
		return ErrPerkID
	}
	if def.Type == PerkPurchasable {
		def.MaxLevel = 1
	} else if def.MaxLevel < 1 {
		return ErrPerkMaxLevel
	}
	if def.CostMultiplier == 0 {
		def.CostMultiplier = 1
	}
	r.mu.Lock()
	r.perks[def.ID] = &def
	r.mu.Unlock()
	r.logger.Info("perk registered", zap.String("perk", def.ID), zap.Stringer("type", def.Type))
	return nil
}

// RegisterConfigured registers the perks declared in the config file.
func (r *PerkRegistry) RegisterConfigured(perks []config.PerkConfig) error {
	for _, pc := range perks {
		typ, ok := ParsePerkType(pc.Type)
		if !ok {
			return fmt.Errorf("guild: perk %q: unknown type %q", pc.ID, pc.Type)
		}
		err := r.Register(PerkDefinition{
			ID:             pc.ID,
			Name:           pc.Name,
			Description:    pc.Description,
			Type:           typ,
			MaxLevel:       pc.MaxLevel,
			BaseCost:       pc.BaseCost,
			CostMultiplier: pc.CostMultiplier,
		})
		if err != nil {
			return fmt.Errorf("guild: perk %q: %w", pc.ID, err)
		}
	}
	return nil
}

// Unregister removes a definition. Stored levels are kept but inert.
func (r *PerkRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.perks[id]; !ok {
		return false
	}
	delete(r.perks, id)
	return true
}

func (r *PerkRegistry) Lookup(id string) (*PerkDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.perks[id]
	return d, ok
}

// List returns all definitions sorted by id.
func (r *PerkRegistry) List() []*PerkDefinition {
	r.mu.RLock()
	out := make([]*PerkDefinition, 0, len(r.perks))
	for _, d := range r.perks {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Level returns the guild's level of a registered perk, 0 otherwise.
func (r *PerkRegistry) Level(g *model.Guild, perkID string) int {
	if _, ok := r.Lookup(perkID); !ok || g == nil {
		return 0
	}
	if p := g.Perk(perkID); p != nil {
		return p.Level
	}
	return 0
}

// Active reports level>0 and enabled for a registered perk.
func (r *PerkRegistry) Active(g *model.Guild, perkID string) bool {
	if _, ok := r.Lookup(perkID); !ok || g == nil {
		return false
	}
	p := g.Perk(perkID)
	return p != nil && p.Level > 0 && p.Enabled
}

// Dispatch runs hook for every active perk of g. A panicking callback is
// logged and does not stop the others.
func (r *PerkRegistry) Dispatch(ctx context.Context, g *model.Guild, identity int64, h PerkHook) int {
	if g == nil {
		return 0
	}
	ran := 0
	for _, p := range g.Perks {
		if p.Level <= 0 || !p.Enabled {
			continue
		}
		def, ok := r.Lookup(p.PerkID)
		if !ok {
			continue
		}
		fn := def.callback(h)
		if fn == nil {
			continue
		}
		r.safeCall(ctx, fn, p.PerkID, PerkContext{GuildID: g.ID, Identity: identity, Level: p.Level})
		ran++
	}
	return ran
}

func (r *PerkRegistry) safeCall(ctx context.Context, fn PerkFunc, perkID string, pc PerkContext) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("perk callback panic",
				zap.String("perk", perkID), zap.Int64("guild_id", pc.GuildID), zap.Any("panic", rec))
		}
	}()
	fn(ctx, pc)
}

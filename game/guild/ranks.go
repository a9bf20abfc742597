package guild

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kasuganosora/guildserver/config"
)

// Permission is a bitmask of rank capabilities.
type Permission int64

const (
	PermChat Permission = 1 << iota
	PermInvite
	PermKick
	PermPromote
	PermDemote
	PermWithdraw
	PermUpgrade
	PermManagePerks

	// PermAll grants every permission, including ones added later.
	PermAll Permission = -1
)

var (
	ErrNoHigherRank     = errors.New("guild: no higher rank")
	ErrNoLowerRank      = errors.New("guild: no lower rank")
	ErrTargetHigherRank = errors.New("guild: target rank is not below actor")
)

// Rank is a globally configured permission tier.
type Rank struct {
	Name        string     `json:"name"`
	Permissions Permission `json:"permissions"`
	Priority    int        `json:"priority"`
	IsDefault   bool       `json:"is_default"`
}

// Has reports whether the rank grants every bit of flag.
func (r Rank) Has(flag Permission) bool {
	return r.Permissions == PermAll || r.Permissions&flag == flag
}

// RankHierarchy answers rank questions over the configured rank list.
// It is immutable after construction.
type RankHierarchy struct {
	ranks []Rank // priority descending
}

// NewRankHierarchy validates cfg: at least one rank, unique names and
// priorities, at most one default.
func NewRankHierarchy(cfg []config.RankConfig) (*RankHierarchy, error) {
	if len(cfg) == 0 {
		return nil, errors.New("guild: no ranks configured")
	}
	names := make(map[string]bool, len(cfg))
	prios := make(map[int]bool, len(cfg))
	defaults := 0
	ranks := make([]Rank, 0, len(cfg))
	for _, rc := range cfg {
		if rc.Name == "" {
			return nil, errors.New("guild: rank with empty name")
		}
		if names[rc.Name] {
			return nil, fmt.Errorf("guild: duplicate rank name %q", rc.Name)
		}
		if prios[rc.Priority] {
			return nil, fmt.Errorf("guild: duplicate rank priority %d", rc.Priority)
		}
		names[rc.Name] = true
		prios[rc.Priority] = true
		if rc.IsDefault {
			defaults++
		}
		ranks = append(ranks, Rank{
			Name:        rc.Name,
			Permissions: Permission(rc.Permissions),
			Priority:    rc.Priority,
			IsDefault:   rc.IsDefault,
		})
	}
	if defaults > 1 {
		return nil, errors.New("guild: more than one default rank")
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Priority > ranks[j].Priority })
	return &RankHierarchy{ranks: ranks}, nil
}

// RanksByPriorityDescending returns a copy of the ranks, highest first.
func (h *RankHierarchy) RanksByPriorityDescending() []Rank {
	out := make([]Rank, len(h.ranks))
	copy(out, h.ranks)
	return out
}

func (h *RankHierarchy) RankFor(priority int) (Rank, bool) {
	for _, r := range h.ranks {
		if r.Priority == priority {
			return r, true
		}
	}
	return Rank{}, false
}

func (h *RankHierarchy) DefaultRank() (Rank, bool) {
	for _, r := range h.ranks {
		if r.IsDefault {
			return r, true
		}
	}
	return Rank{}, false
}

// LeaderRank is the rank holding PermAll, else the highest-priority rank.
func (h *RankHierarchy) LeaderRank() Rank {
	for _, r := range h.ranks {
		if r.Permissions == PermAll {
			return r
		}
	}
	return h.ranks[0]
}

// HasPermission reports whether a member at priority may use flag. A
// priority that no longer maps to a configured rank grants nothing.
func (h *RankHierarchy) HasPermission(priority int, flag Permission) bool {
	r, ok := h.RankFor(priority)
	return ok && r.Has(flag)
}

// NextPromotion picks the lowest rank strictly between target and actor.
func (h *RankHierarchy) NextPromotion(actor, target int) (Rank, error) {
	if target >= actor {
		return Rank{}, ErrTargetHigherRank
	}
	// ranks are descending, so the last match is the smallest.
	var next Rank
	found := false
	for _, r := range h.ranks {
		if r.Priority > target && r.Priority < actor {
			next, found = r, true
		}
	}
	if !found {
		return Rank{}, ErrNoHigherRank
	}
	return next, nil
}

// NextDemotion picks the highest rank strictly below target.
func (h *RankHierarchy) NextDemotion(actor, target int) (Rank, error) {
	if target >= actor {
		return Rank{}, ErrTargetHigherRank
	}
	for _, r := range h.ranks {
		if r.Priority < target {
			return r, nil
		}
	}
	return Rank{}, ErrNoLowerRank
}

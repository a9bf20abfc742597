package model

import "time"

// UpgradeType enumerates the fixed set of guild-wide upgrades.
type UpgradeType int

const (
	UpgradeSlots UpgradeType = iota
	UpgradeBankCapacity
	UpgradeXPBoost
	UpgradeBankInterest

	NumUpgradeTypes = 4
)

var upgradeTypeNames = [NumUpgradeTypes]string{"slots", "bank_capacity", "xp_boost", "bank_interest"}

func (t UpgradeType) String() string {
	if t.Valid() {
		return upgradeTypeNames[t]
	}
	return "unknown"
}

// Valid reports whether t is one of the known upgrade types.
func (t UpgradeType) Valid() bool { return t >= 0 && t < NumUpgradeTypes }

// ParseUpgradeType resolves the lower-case config/API name of an upgrade.
func ParseUpgradeType(s string) (UpgradeType, bool) {
	for i, n := range upgradeTypeNames {
		if n == s {
			return UpgradeType(i), true
		}
	}
	return 0, false
}

// Guild is the persisted guild aggregate root.
type Guild struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Tag            string    `gorm:"size:32" json:"tag"`
	LeaderIdentity int64     `gorm:"not null" json:"leader_identity"`
	BankBalance    int64     `gorm:"not null;default:0" json:"bank_balance"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Members  []Member  `gorm:"foreignKey:GuildID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Upgrades []Upgrade `gorm:"foreignKey:GuildID;constraint:OnDelete:CASCADE" json:"upgrades,omitempty"`
	Perks    []Perk    `gorm:"foreignKey:GuildID;constraint:OnDelete:CASCADE" json:"perks,omitempty"`
}

func (Guild) TableName() string { return "guilds" }

// Member finds the member row for identity, or nil.
func (g *Guild) Member(identity int64) *Member {
	for i := range g.Members {
		if g.Members[i].Identity == identity {
			return &g.Members[i]
		}
	}
	return nil
}

// UpgradeLevel returns the purchased level of t, 0 when never bought.
func (g *Guild) UpgradeLevel(t UpgradeType) int {
	for _, u := range g.Upgrades {
		if u.UpgradeType == t {
			return u.Level
		}
	}
	return 0
}

// Perk finds the perk state for perkID, or nil.
func (g *Guild) Perk(perkID string) *Perk {
	for i := range g.Perks {
		if g.Perks[i].PerkID == perkID {
			return &g.Perks[i]
		}
	}
	return nil
}

// Member belongs to exactly one guild; identity is globally unique.
type Member struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID      int64     `gorm:"not null;index" json:"guild_id"`
	Identity     int64     `gorm:"uniqueIndex;not null" json:"identity"`
	DisplayName  string    `gorm:"size:64" json:"display_name"`
	RankPriority int       `gorm:"not null;default:0" json:"rank_priority"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeen     time.Time `json:"last_seen"`
}

func (Member) TableName() string { return "members" }

type Upgrade struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID     int64       `gorm:"not null;uniqueIndex:idx_guild_upgrade" json:"guild_id"`
	UpgradeType UpgradeType `gorm:"not null;uniqueIndex:idx_guild_upgrade" json:"upgrade_type"`
	Level       int         `gorm:"not null;default:0" json:"level"`
	PurchasedAt time.Time   `json:"purchased_at"`
}

func (Upgrade) TableName() string { return "upgrades" }

type Perk struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID     int64     `gorm:"not null;uniqueIndex:idx_guild_perk" json:"guild_id"`
	PerkID      string    `gorm:"size:64;not null;uniqueIndex:idx_guild_perk" json:"perk_id"`
	Level       int       `gorm:"not null;default:0" json:"level"`
	Enabled     bool      `gorm:"not null;default:false" json:"enabled"`
	PurchasedAt time.Time `json:"purchased_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Perk) TableName() string { return "perks" }

package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Guild    GuildConfig    `mapstructure:"guild"`
	Upgrades UpgradesConfig `mapstructure:"upgrades"`
	Perks    []PerkConfig   `mapstructure:"perks"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /admin to these addresses or CIDRs. Empty allows all.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	LocalPubSubBuf int    `mapstructure:"local_pubsub_buf"`
	// GCInterval is how often expired guild cache entries are swept.
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RankConfig describes one globally configured guild rank.
type RankConfig struct {
	Name        string `mapstructure:"name"`
	Permissions int64  `mapstructure:"permissions"` // bitmask, -1 grants everything
	Priority    int    `mapstructure:"priority"`
	IsDefault   bool   `mapstructure:"is_default"`
}

type GuildConfig struct {
	WalletKind                string        `mapstructure:"wallet_kind"`
	DefaultSlots              int           `mapstructure:"default_slots"`
	MaxSlots                  int           `mapstructure:"max_slots"`
	CreationCost              int64         `mapstructure:"creation_cost"`
	RenameCost                int64         `mapstructure:"rename_cost"`
	MinNameLength             int           `mapstructure:"min_name_length"`
	MaxNameLength             int           `mapstructure:"max_name_length"`
	MaxTagLength              int           `mapstructure:"max_tag_length"`
	ShowTagOnScoreboard       bool          `mapstructure:"show_tag_on_scoreboard"`
	ScoreboardRefreshInterval time.Duration `mapstructure:"scoreboard_refresh_interval"`
	CacheTTL                  time.Duration `mapstructure:"cache_ttl"`
	InviteTTL                 time.Duration `mapstructure:"invite_ttl"`
	ChatCooldown              time.Duration `mapstructure:"chat_cooldown"`
	ChatHistory               int           `mapstructure:"chat_history"`
	Ranks                     []RankConfig  `mapstructure:"ranks"`
}

// UpgradeSettings is the part shared by every upgrade type.
type UpgradeSettings struct {
	Enabled        bool    `mapstructure:"enabled"`
	MaxLevel       int     `mapstructure:"max_level"`
	BaseCost       int64   `mapstructure:"base_cost"`
	CostMultiplier float64 `mapstructure:"cost_multiplier"`
}

type SlotsUpgrade struct {
	UpgradeSettings `mapstructure:",squash"`
	SlotsPerLevel   int `mapstructure:"slots_per_level"`
}

type BankCapacityUpgrade struct {
	UpgradeSettings  `mapstructure:",squash"`
	BaseCapacity     int64 `mapstructure:"base_capacity"`
	CapacityPerLevel int64 `mapstructure:"capacity_per_level"`
}

type XPBoostUpgrade struct {
	UpgradeSettings `mapstructure:",squash"`
	BoostPerLevel   int `mapstructure:"boost_per_level"`
}

type BankInterestUpgrade struct {
	UpgradeSettings  `mapstructure:",squash"`
	InterestPerLevel float64       `mapstructure:"interest_per_level"`
	Interval         time.Duration `mapstructure:"interval"`
}

type UpgradesConfig struct {
	Slots        SlotsUpgrade        `mapstructure:"slots"`
	BankCapacity BankCapacityUpgrade `mapstructure:"bank_capacity"`
	XPBoost      XPBoostUpgrade      `mapstructure:"xp_boost"`
	BankInterest BankInterestUpgrade `mapstructure:"bank_interest"`
}

// PerkConfig declares a perk without gameplay callbacks. Game code may
// still register richer definitions at runtime under other ids.
type PerkConfig struct {
	ID             string  `mapstructure:"id"`
	Name           string  `mapstructure:"name"`
	Description    string  `mapstructure:"description"`
	Type           string  `mapstructure:"type"` // purchasable | upgradeable
	MaxLevel       int     `mapstructure:"max_level"`
	BaseCost       int64   `mapstructure:"base_cost"`
	CostMultiplier float64 `mapstructure:"cost_multiplier"`
}

// DefaultPerks is used when the config file has no perks key.
func DefaultPerks() []PerkConfig {
	return []PerkConfig{
		{ID: "health_boost", Name: "Health Boost", Description: "Extra max health on spawn",
			Type: "upgradeable", MaxLevel: 10, BaseCost: 1500, CostMultiplier: 1.3},
		{ID: "speed_boost", Name: "Speed Boost", Description: "Increased movement speed on spawn",
			Type: "upgradeable", MaxLevel: 5, BaseCost: 2000, CostMultiplier: 1.5},
	}
}

// DefaultRanks is used when the config file declares no ranks.
func DefaultRanks() []RankConfig {
	return []RankConfig{
		{Name: "leader", Permissions: -1, Priority: 100},
		{Name: "officer", Permissions: 191, Priority: 50},
		{Name: "member", Permissions: 1, Priority: 0, IsDefault: true},
	}
}

// DefaultGuild returns the guild settings used when a key is absent.
func DefaultGuild() GuildConfig {
	return GuildConfig{
		WalletKind:                "credits",
		DefaultSlots:              5,
		MaxSlots:                  20,
		CreationCost:              5000,
		MinNameLength:             3,
		MaxNameLength:             32,
		MaxTagLength:              4,
		ShowTagOnScoreboard:       true,
		ScoreboardRefreshInterval: time.Minute,
		CacheTTL:                  5 * time.Minute,
		InviteTTL:                 time.Minute,
		ChatCooldown:              time.Second,
		ChatHistory:               50,
		Ranks:                     DefaultRanks(),
	}
}

// DefaultUpgrades returns the stock upgrade table.
func DefaultUpgrades() UpgradesConfig {
	return UpgradesConfig{
		Slots: SlotsUpgrade{
			UpgradeSettings: UpgradeSettings{Enabled: true, MaxLevel: 5, BaseCost: 1000, CostMultiplier: 1.5},
			SlotsPerLevel:   2,
		},
		BankCapacity: BankCapacityUpgrade{
			UpgradeSettings:  UpgradeSettings{Enabled: true, MaxLevel: 10, BaseCost: 500, CostMultiplier: 1.3},
			BaseCapacity:     10000,
			CapacityPerLevel: 5000,
		},
		XPBoost: XPBoostUpgrade{
			UpgradeSettings: UpgradeSettings{Enabled: true, MaxLevel: 5, BaseCost: 2000, CostMultiplier: 2.0},
			BoostPerLevel:   5,
		},
		BankInterest: BankInterestUpgrade{
			UpgradeSettings:  UpgradeSettings{Enabled: true, MaxLevel: 5, BaseCost: 3000, CostMultiplier: 2.5},
			InterestPerLevel: 1.0,
			Interval:         time.Hour,
		},
	}
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	g := DefaultGuild()
	u := DefaultUpgrades()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/guilds.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("cache.gc_interval", "30s")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	v.SetDefault("guild.wallet_kind", g.WalletKind)
	v.SetDefault("guild.default_slots", g.DefaultSlots)
	v.SetDefault("guild.max_slots", g.MaxSlots)
	v.SetDefault("guild.creation_cost", g.CreationCost)
	v.SetDefault("guild.rename_cost", g.RenameCost)
	v.SetDefault("guild.min_name_length", g.MinNameLength)
	v.SetDefault("guild.max_name_length", g.MaxNameLength)
	v.SetDefault("guild.max_tag_length", g.MaxTagLength)
	v.SetDefault("guild.show_tag_on_scoreboard", g.ShowTagOnScoreboard)
	v.SetDefault("guild.scoreboard_refresh_interval", g.ScoreboardRefreshInterval)
	v.SetDefault("guild.cache_ttl", g.CacheTTL)
	v.SetDefault("guild.invite_ttl", g.InviteTTL)
	v.SetDefault("guild.chat_cooldown", g.ChatCooldown)
	v.SetDefault("guild.chat_history", g.ChatHistory)

	setUpgradeDefaults(v, "upgrades.slots", u.Slots.UpgradeSettings)
	v.SetDefault("upgrades.slots.slots_per_level", u.Slots.SlotsPerLevel)
	setUpgradeDefaults(v, "upgrades.bank_capacity", u.BankCapacity.UpgradeSettings)
	v.SetDefault("upgrades.bank_capacity.base_capacity", u.BankCapacity.BaseCapacity)
	v.SetDefault("upgrades.bank_capacity.capacity_per_level", u.BankCapacity.CapacityPerLevel)
	setUpgradeDefaults(v, "upgrades.xp_boost", u.XPBoost.UpgradeSettings)
	v.SetDefault("upgrades.xp_boost.boost_per_level", u.XPBoost.BoostPerLevel)
	setUpgradeDefaults(v, "upgrades.bank_interest", u.BankInterest.UpgradeSettings)
	v.SetDefault("upgrades.bank_interest.interest_per_level", u.BankInterest.InterestPerLevel)
	v.SetDefault("upgrades.bank_interest.interval", u.BankInterest.Interval)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Guild.Ranks) == 0 {
		cfg.Guild.Ranks = DefaultRanks()
	}
	if !v.IsSet("perks") {
		cfg.Perks = DefaultPerks()
	}
	return cfg, nil
}

func setUpgradeDefaults(v *viper.Viper, prefix string, s UpgradeSettings) {
	v.SetDefault(prefix+".enabled", s.Enabled)
	v.SetDefault(prefix+".max_level", s.MaxLevel)
	v.SetDefault(prefix+".base_cost", s.BaseCost)
	v.SetDefault(prefix+".cost_multiplier", s.CostMultiplier)
}

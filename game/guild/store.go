package guild

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/guildserver/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicate reports a unique-constraint hit (guild name, member identity).
	ErrDuplicate = errors.New("guild: duplicate key")
)

// Store is the persistence boundary. Lookups return (nil, nil) when the
// row does not exist; errors are I/O faults only.
type Store interface {
	// GetGuild loads a guild with its members, upgrades and perks.
	GetGuild(ctx context.Context, id int64) (*model.Guild, error)
	GetGuildByName(ctx context.Context, name string) (*model.Guild, error)
	GetGuildByIdentity(ctx context.Context, identity int64) (*model.Guild, error)
	// LockGuild loads only the guild row, locked for the rest of the transaction.
	LockGuild(ctx context.Context, id int64) (*model.Guild, error)
	ListGuilds(ctx context.Context, offset, limit int) ([]*model.Guild, error)
	// GuildIDsAfter pages guild ids in ascending order, starting after afterID.
	GuildIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)

	CreateGuild(ctx context.Context, g *model.Guild, leader *model.Member) error
	RenameGuild(ctx context.Context, id int64, name string) error
	DeleteGuild(ctx context.Context, id int64) (bool, error)
	SetBankBalance(ctx context.Context, id int64, balance int64) error

	CountMembers(ctx context.Context, guildID int64) (int, error)
	AddMember(ctx context.Context, m *model.Member) error
	RemoveMember(ctx context.Context, guildID, identity int64) (bool, error)
	UpdateMemberRank(ctx context.Context, guildID, identity int64, priority int) (bool, error)
	TouchMember(ctx context.Context, identity int64, displayName string, at time.Time) error

	GetUpgradeLevel(ctx context.Context, guildID int64, t model.UpgradeType) (int, error)
	SetUpgradeLevel(ctx context.Context, guildID int64, t model.UpgradeType, level int) error

	GetPerk(ctx context.Context, guildID int64, perkID string) (*model.Perk, error)
	// SetPerkLevel moves a perk from level `from` to `to`, enabling it. It
	// reports false when the stored level was no longer `from`.
	SetPerkLevel(ctx context.Context, guildID int64, perkID string, from, to int) (bool, error)
	SetPerkEnabled(ctx context.Context, guildID int64, perkID string, enabled bool) error

	// Transaction runs fn against a Store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

func (s *GormStore) loadGuild(ctx context.Context, where string, args ...interface{}) (*model.Guild, error) {
	var g model.Guild
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("rank_priority DESC, joined_at ASC") }).
		Preload("Upgrades").
		Preload("Perks").
		Where(where, args...).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *GormStore) GetGuild(ctx context.Context, id int64) (*model.Guild, error) {
	g, err := s.loadGuild(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get guild %d: %w", id, err)
	}
	return g, nil
}

func (s *GormStore) GetGuildByName(ctx context.Context, name string) (*model.Guild, error) {
	g, err := s.loadGuild(ctx, "name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("get guild by name: %w", err)
	}
	return g, nil
}

func (s *GormStore) GetGuildByIdentity(ctx context.Context, identity int64) (*model.Guild, error) {
	var m model.Member
	err := s.db.WithContext(ctx).Select("guild_id").Where("identity = ?", identity).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member %d: %w", identity, err)
	}
	return s.GetGuild(ctx, m.GuildID)
}

func (s *GormStore) LockGuild(ctx context.Context, id int64) (*model.Guild, error) {
	var g model.Guild
	err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock guild %d: %w", id, err)
	}
	return &g, nil
}

func (s *GormStore) ListGuilds(ctx context.Context, offset, limit int) ([]*model.Guild, error) {
	var guilds []*model.Guild
	err := s.db.WithContext(ctx).
		Preload("Members").
		Preload("Upgrades").
		Preload("Perks").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&guilds).Error
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return guilds, nil
}

func (s *GormStore) GuildIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.Guild{}).
		Where("id > ?", afterID).Order("id ASC").Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("page guild ids: %w", err)
	}
	return ids, nil
}

// CreateGuild inserts the guild and its leader atomically. Duplicate name
// or leader identity yields ErrDuplicate.
func (s *GormStore) CreateGuild(ctx context.Context, g *model.Guild, leader *model.Member) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			return err
		}
		leader.GuildID = g.ID
		return tx.Create(leader).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create guild: %w", err)
	}
	g.Members = []model.Member{*leader}
	return nil
}

func (s *GormStore) RenameGuild(ctx context.Context, id int64, name string) error {
	err := s.db.WithContext(ctx).Model(&model.Guild{}).Where("id = ?", id).Update("name", name).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("rename guild %d: %w", id, err)
	}
	return nil
}

// DeleteGuild removes the guild and every owned row. Children are deleted
// explicitly so drivers without cascading foreign keys behave the same.
func (s *GormStore) DeleteGuild(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []interface{}{&model.Member{}, &model.Upgrade{}, &model.Perk{}} {
			if err := tx.Where("guild_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&model.Guild{}, id)
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete guild %d: %w", id, err)
	}
	return deleted, nil
}

func (s *GormStore) SetBankBalance(ctx context.Context, id int64, balance int64) error {
	err := s.db.WithContext(ctx).Model(&model.Guild{}).Where("id = ?", id).Update("bank_balance", balance).Error
	if err != nil {
		return fmt.Errorf("set bank balance %d: %w", id, err)
	}
	return nil
}

func (s *GormStore) CountMembers(ctx context.Context, guildID int64) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Member{}).Where("guild_id = ?", guildID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count members %d: %w", guildID, err)
	}
	return int(n), nil
}

func (s *GormStore) AddMember(ctx context.Context, m *model.Member) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("add member %d: %w", m.Identity, err)
	}
	return nil
}

func (s *GormStore) RemoveMember(ctx context.Context, guildID, identity int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("guild_id = ? AND identity = ?", guildID, identity).Delete(&model.Member{})
	if res.Error != nil {
		return false, fmt.Errorf("remove member %d: %w", identity, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) UpdateMemberRank(ctx context.Context, guildID, identity int64, priority int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Member{}).
		Where("guild_id = ? AND identity = ?", guildID, identity).
		Update("rank_priority", priority)
	if res.Error != nil {
		return false, fmt.Errorf("update rank %d: %w", identity, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) TouchMember(ctx context.Context, identity int64, displayName string, at time.Time) error {
	updates := map[string]interface{}{"last_seen": at}
	if displayName != "" {
		updates["display_name"] = displayName
	}
	err := s.db.WithContext(ctx).Model(&model.Member{}).Where("identity = ?", identity).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("touch member %d: %w", identity, err)
	}
	return nil
}

func (s *GormStore) GetUpgradeLevel(ctx context.Context, guildID int64, t model.UpgradeType) (int, error) {
	var u model.Upgrade
	err := s.db.WithContext(ctx).Where("guild_id = ? AND upgrade_type = ?", guildID, t).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get upgrade %s: %w", t, err)
	}
	return u.Level, nil
}

func (s *GormStore) SetUpgradeLevel(ctx context.Context, guildID int64, t model.UpgradeType, level int) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "upgrade_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "purchased_at"}),
	}).Create(&model.Upgrade{GuildID: guildID, UpgradeType: t, Level: level, PurchasedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("set upgrade %s: %w", t, err)
	}
	return nil
}

func (s *GormStore) GetPerk(ctx context.Context, guildID int64, perkID string) (*model.Perk, error) {
	var p model.Perk
	err := s.db.WithContext(ctx).Where("guild_id = ? AND perk_id = ?", guildID, perkID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get perk %s: %w", perkID, err)
	}
	return &p, nil
}

func (s *GormStore) SetPerkLevel(ctx context.Context, guildID int64, perkID string, from, to int) (bool, error) {
	db := s.db.WithContext(ctx)
	if from == 0 {
		err := db.Create(&model.Perk{GuildID: guildID, PerkID: perkID, Level: to, Enabled: true, PurchasedAt: time.Now()}).Error
		if err != nil {
			if isUniqueViolation(err) {
				return false, nil
			}
			return false, fmt.Errorf("create perk %s: %w", perkID, err)
		}
		return true, nil
	}
	res := db.Model(&model.Perk{}).
		Where("guild_id = ? AND perk_id = ? AND level = ?", guildID, perkID, from).
		Updates(map[string]interface{}{"level": to, "enabled": true})
	if res.Error != nil {
		return false, fmt.Errorf("upgrade perk %s: %w", perkID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetPerkEnabled(ctx context.Context, guildID int64, perkID string, enabled bool) error {
	err := s.db.WithContext(ctx).Model(&model.Perk{}).
		Where("guild_id = ? AND perk_id = ?", guildID, perkID).
		Update("enabled", enabled).Error
	if err != nil {
		return fmt.Errorf("toggle perk %s: %w", perkID, err)
	}
	return nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

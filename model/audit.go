package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records guild mutations published on the event bus.
type AuditLog struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID        int64          `gorm:"index:idx_audit_guild" json:"guild_id"`
	Action         string         `gorm:"size:64;not null" json:"action"`
	ActorIdentity  int64          `json:"actor_identity"`
	TargetIdentity int64          `json:"target_identity"`
	Amount         int64          `json:"amount"`
	Reason         string         `gorm:"size:128" json:"reason"`
	Detail         datatypes.JSON `json:"detail"`
	CreatedAt      time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

func (AuditLog) TableName() string { return "guild_audit_logs" }

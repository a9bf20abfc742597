package model

import "time"

// Wallet is a player's spendable balance of one currency kind.
type Wallet struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Identity  int64     `gorm:"not null;uniqueIndex:idx_wallet_owner" json:"identity"`
	Kind      string    `gorm:"size:32;not null;uniqueIndex:idx_wallet_owner" json:"kind"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

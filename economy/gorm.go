package economy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kasuganosora/guildserver/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWallet stores balances in the wallets table.
type GormWallet struct {
	db *gorm.DB
}

func NewGormWallet(db *gorm.DB) *GormWallet {
	return &GormWallet{db: db}
}

func (w *GormWallet) GetBalance(ctx context.Context, identity int64, kind string) (int64, error) {
	var wl model.Wallet
	err := w.db.WithContext(ctx).Where("identity = ? AND kind = ?", identity, kind).First(&wl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return wl.Balance, nil
}

func (w *GormWallet) HasSufficientFunds(ctx context.Context, identity int64, kind string, amount int64) (bool, error) {
	bal, err := w.GetBalance(ctx, identity, kind)
	if err != nil {
		return false, err
	}
	return bal >= amount, nil
}

// AddBalance credits the wallet, creating the row on first use.
func (w *GormWallet) AddBalance(ctx context.Context, identity int64, kind string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wl model.Wallet
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("identity = ? AND kind = ?", identity, kind).First(&wl).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.Wallet{Identity: identity, Kind: kind, Balance: amount}).Error
		}
		if err != nil {
			return err
		}
		if wl.Balance > math.MaxInt64-amount {
			return ErrInvalidAmount
		}
		return tx.Model(&wl).Update("balance", gorm.Expr("balance + ?", amount)).Error
	})
	if errors.Is(err, ErrInvalidAmount) {
		return err
	}
	if err != nil {
		return fmt.Errorf("wallet credit: %w", err)
	}
	return nil
}

// SubtractBalance debits the wallet with a single conditional UPDATE so the
// balance cannot go negative under concurrent debits.
func (w *GormWallet) SubtractBalance(ctx context.Context, identity int64, kind string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := w.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("identity = ? AND kind = ? AND balance >= ?", identity, kind, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("wallet debit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

package guild

import (
	"context"
	"errors"
	"math"
)

// errRollback aborts a store transaction after a business-rule failure;
// the Result carries the reason.
var errRollback = errors.New("guild: rollback")

// BankLedger mutates guild bank balances. Each call is one store
// transaction holding the guild row lock, so concurrent mutations on the
// same guild never interleave their read-modify-write.
type BankLedger struct {
	store Store
	cache *GuildCache
}

// NewBankLedger creates a ledger. cache may be nil; when set, the guild's
// entries are invalidated after every successful mutation.
func NewBankLedger(store Store, cache *GuildCache) *BankLedger {
	return &BankLedger{store: store, cache: cache}
}

// AddToBank credits amount without letting the balance pass maxCapacity.
// On failure the balance is unchanged and the prior balance is returned.
func (l *BankLedger) AddToBank(ctx context.Context, guildID, amount, maxCapacity int64) (int64, Result, error) {
	var balance int64
	var res Result
	err := l.store.Transaction(ctx, func(tx Store) error {
		var err error
		balance, res, err = credit(ctx, tx, guildID, amount, maxCapacity)
		if err == nil && !res.OK() {
			return errRollback
		}
		return err
	})
	return l.finish(guildID, balance, res, err)
}

// SubtractFromBank debits amount, never below zero.
func (l *BankLedger) SubtractFromBank(ctx context.Context, guildID, amount int64) (int64, Result, error) {
	var balance int64
	var res Result
	err := l.store.Transaction(ctx, func(tx Store) error {
		var err error
		balance, res, err = debit(ctx, tx, guildID, amount)
		if err == nil && !res.OK() {
			return errRollback
		}
		return err
	})
	return l.finish(guildID, balance, res, err)
}

// Balance reads the current balance straight from the store.
func (l *BankLedger) Balance(ctx context.Context, guildID int64) (int64, bool, error) {
	g, err := l.store.LockGuild(ctx, guildID)
	if err != nil || g == nil {
		return 0, false, err
	}
	return g.BankBalance, true, nil
}

func (l *BankLedger) finish(guildID, balance int64, res Result, err error) (int64, Result, error) {
	if errors.Is(err, errRollback) {
		return balance, res, nil
	}
	if err != nil {
		return 0, Result{}, err
	}
	if l.cache != nil {
		l.cache.InvalidateGuild(guildID)
	}
	return balance, res, nil
}

// credit runs inside tx. Non-OK results leave the balance untouched.
func credit(ctx context.Context, tx Store, guildID, amount, maxCapacity int64) (int64, Result, error) {
	g, err := tx.LockGuild(ctx, guildID)
	if err != nil {
		return 0, Result{}, err
	}
	if g == nil {
		return 0, fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	balance := g.BankBalance
	if amount <= 0 {
		return balance, fail(KindValidation, ErrMsgInvalidAmount), nil
	}
	if balance > math.MaxInt64-amount || balance+amount > maxCapacity {
		return balance, fail(KindCapacityExceeded, ErrMsgExceedCapacity).
			With("capacity", maxCapacity).With("balance", balance), nil
	}
	balance += amount
	if err := tx.SetBankBalance(ctx, guildID, balance); err != nil {
		return 0, Result{}, err
	}
	return balance, success(MsgBankUpdated).With("balance", balance), nil
}

// debit runs inside tx. Non-OK results leave the balance untouched.
func debit(ctx context.Context, tx Store, guildID, amount int64) (int64, Result, error) {
	g, err := tx.LockGuild(ctx, guildID)
	if err != nil {
		return 0, Result{}, err
	}
	if g == nil {
		return 0, fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	balance := g.BankBalance
	if amount <= 0 {
		return balance, fail(KindValidation, ErrMsgInvalidAmount), nil
	}
	if balance < amount {
		return balance, fail(KindInsufficientFunds, ErrMsgInsufficientBank).With("balance", balance), nil
	}
	balance -= amount
	if err := tx.SetBankBalance(ctx, guildID, balance); err != nil {
		return 0, Result{}, err
	}
	return balance, success(MsgBankUpdated).With("balance", balance), nil
}

// Package economy is the boundary to the player currency provider.
package economy

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned by SubtractBalance when the wallet
	// holds less than the requested amount.
	ErrInsufficientFunds = errors.New("economy: insufficient funds")
	// ErrInvalidAmount rejects zero and negative amounts.
	ErrInvalidAmount = errors.New("economy: amount must be positive")
)

// Wallet holds players' spendable currency. Calls are not transactional
// with the guild store; callers compensate on later failures.
type Wallet interface {
	GetBalance(ctx context.Context, identity int64, kind string) (int64, error)
	HasSufficientFunds(ctx context.Context, identity int64, kind string, amount int64) (bool, error)
	AddBalance(ctx context.Context, identity int64, kind string, amount int64) error
	SubtractBalance(ctx context.Context, identity int64, kind string, amount int64) error
}

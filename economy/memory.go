package economy

import (
	"context"
	"math"
	"sync"
)

type walletKey struct {
	identity int64
	kind     string
}

// MemoryWallet keeps balances in process memory.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[walletKey]int64
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[walletKey]int64)}
}

func (w *MemoryWallet) GetBalance(_ context.Context, identity int64, kind string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[walletKey{identity, kind}], nil
}

func (w *MemoryWallet) HasSufficientFunds(_ context.Context, identity int64, kind string, amount int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[walletKey{identity, kind}] >= amount, nil
}

func (w *MemoryWallet) AddBalance(_ context.Context, identity int64, kind string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	k := walletKey{identity, kind}
	if w.balances[k] > math.MaxInt64-amount {
		return ErrInvalidAmount
	}
	w.balances[k] += amount
	return nil
}

func (w *MemoryWallet) SubtractBalance(_ context.Context, identity int64, kind string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	k := walletKey{identity, kind}
	if w.balances[k] < amount {
		return ErrInsufficientFunds
	}
	w.balances[k] -= amount
	return nil
}

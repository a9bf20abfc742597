package guild

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankBalance(t *testing.T, s Store, guildID int64) int64 {
	t.Helper()
	g, err := s.GetGuild(context.Background(), guildID)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g.BankBalance
}

func TestBankLedger_AddRespectsCapacity(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	l := NewBankLedger(s, nil)
	ctx := context.Background()

	bal, res, err := l.AddToBank(ctx, g.ID, 9000, 10000)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, int64(9000), bal)

	bal, res, err = l.AddToBank(ctx, g.ID, 1001, 10000)
	require.NoError(t, err)
	assert.Equal(t, KindCapacityExceeded, res.Kind)
	assert.Equal(t, int64(9000), bal, "prior balance reported")
	assert.Equal(t, int64(9000), bankBalance(t, s, g.ID))

	bal, res, err = l.AddToBank(ctx, g.ID, 1000, 10000)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, int64(10000), bal)
}

func TestBankLedger_SubtractNeverNegative(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	l := NewBankLedger(s, nil)
	ctx := context.Background()
	_, _, err := l.AddToBank(ctx, g.ID, 500, 10000)
	require.NoError(t, err)

	bal, res, err := l.SubtractFromBank(ctx, g.ID, 501)
	require.NoError(t, err)
	assert.Equal(t, KindInsufficientFunds, res.Kind)
	assert.Equal(t, int64(500), bal)

	bal, res, err = l.SubtractFromBank(ctx, g.ID, 500)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Zero(t, bal)
}

func TestBankLedger_RejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	l := NewBankLedger(s, nil)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		_, res, err := l.AddToBank(ctx, g.ID, amount, 10000)
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)
		_, res, err = l.SubtractFromBank(ctx, g.ID, amount)
		require.NoError(t, err)
		assert.Equal(t, KindValidation, res.Kind)
	}

	_, res, err := l.AddToBank(ctx, g.ID+100, 10, 10000)
	require.NoError(t, err)
	assert.Equal(t, KindNotFound, res.Kind)
}

func TestBankLedger_OverflowIsCapacityError(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	l := NewBankLedger(s, nil)
	ctx := context.Background()
	require.NoError(t, s.SetBankBalance(ctx, g.ID, math.MaxInt64-10))

	_, res, err := l.AddToBank(ctx, g.ID, 11, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, KindCapacityExceeded, res.Kind)
	assert.Equal(t, int64(math.MaxInt64-10), bankBalance(t, s, g.ID))
}

func TestBankLedger_ConcurrentDepositsAreSerialized(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	l := NewBankLedger(s, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, res, err := l.AddToBank(ctx, g.ID, 100, 1_000_000)
			assert.NoError(t, err)
			assert.True(t, res.OK())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n*100), bankBalance(t, s, g.ID))
}

func TestBankLedger_InvalidatesCache(t *testing.T) {
	s := newTestStore(t)
	g := seedGuild(t, s, "Alpha", 1)
	c := NewGuildCache(s, time.Minute, 0, nil)
	defer c.Close()
	l := NewBankLedger(s, c)
	ctx := context.Background()

	before, err := c.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Zero(t, before.BankBalance)

	_, _, err = l.AddToBank(ctx, g.ID, 250, 10000)
	require.NoError(t, err)
	after, err := c.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), after.BankBalance)
}

package loyalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/loyalty-engine/loyalty"
)

func TestLedger_CreateWallet(t *testing.T) {
	store := newTestStore(t)
	ledger := loyalty.NewLedger(store)
	ctx := context.Background()

	wallet, err := ledger.CreateWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loyalty.AccountID(1), wallet.AccountID)
	assert.Equal(t, 0, wallet.Balance)

	_, err = ledger.CreateWallet(ctx, 1)
	assert.ErrorIs(t, err, loyalty.ErrAlreadyExists)
}

func TestLedger_GetBalance_NoWallet(t *testing.T) {
	store := newTestStore(t)
	ledger := loyalty.NewLedger(store)

	_, err := ledger.GetBalance(context.Background(), 42)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestLedger_ApplyDelta(t *testing.T) {
	// GIVEN: A fresh wallet
	// WHEN: Crediting 50 then debiting 20
	// THEN: Balance is 30 and the ledger holds both entries with the
	//       balances they produced

	store := newTestStore(t)
	ledger := loyalty.NewLedger(store)
	ctx := context.Background()

	_, err := ledger.CreateWallet(ctx, 1)
	require.NoError(t, err)

	balance, err := ledger.ApplyDelta(ctx, 1, 50, "credit")
	require.NoError(t, err)
	assert.Equal(t, 50, balance)

	balance, err = ledger.ApplyDelta(ctx, 1, -20, "debit")
	require.NoError(t, err)
	assert.Equal(t, 30, balance)

	changes, err := ledger.Changes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	// Newest first
	assert.Equal(t, -20, changes[0].Delta)
	assert.Equal(t, 30, changes[0].CurrentBalance)
	assert.Equal(t, "debit", changes[0].Reason)
	assert.Equal(t, 50, changes[1].Delta)
	assert.Equal(t, 50, changes[1].CurrentBalance)
	assert.NotEmpty(t, changes[0].ID)
	assert.NotEqual(t, changes[0].ID, changes[1].ID)
}

func TestLedger_ApplyDelta_NoWallet(t *testing.T) {
	store := newTestStore(t)
	ledger := loyalty.NewLedger(store)

	_, err := ledger.ApplyDelta(context.Background(), 9, 10, "orphan credit")
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	// No ledger entry leaks out of the rolled-back transaction
	changes, err := ledger.Changes(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestLedger_ApplyDeltaAt_BackdatedTimestamp(t *testing.T) {
	// GIVEN: A wallet
	// WHEN: Applying a delta with an explicit past timestamp
	// THEN: The ledger entry carries that timestamp, not now

	store := newTestStore(t)
	ledger := loyalty.NewLedger(store)
	ctx := context.Background()

	_, err := ledger.CreateWallet(ctx, 1)
	require.NoError(t, err)

	placedAt := time.Date(2026, time.March, 5, 12, 30, 0, 0, time.UTC)
	_, err = ledger.ApplyDeltaAt(ctx, 1, 70, "purchase reward", placedAt)
	require.NoError(t, err)

	changes, err := ledger.Changes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].CreatedAt.Equal(placedAt))
}

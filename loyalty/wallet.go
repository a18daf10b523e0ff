/*
wallet.go - Exp wallet ledger

PURPOSE:
  The Ledger is the single entry point for every balance mutation.
  Each delta updates the wallet row and appends one BalanceChange
  carrying the resulting balance, inside one storage transaction, so
  the audit trail can never drift from the wallet's actual value.

WHY A SINGLE ENTRY POINT?
  Two concurrent debits that both read the same starting balance would
  allow an over-spend. Routing every mutation through ApplyDelta inside
  WithTx means the "new balance" written to each ledger row is always
  computed from the latest committed balance, never from a stale read.

NEGATIVE BALANCES:
  The ledger itself does not reject deltas that drive the balance
  negative; the balance precondition belongs to the caller (the
  combination engine checks cost <= balance before debiting).
*/
package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger owns wallet balances and their append-only change log.
type Ledger struct {
	store TxStore
}

// NewLedger creates a ledger over the given store.
func NewLedger(store TxStore) *Ledger {
	return &Ledger{store: store}
}

// CreateWallet provisions a zero-balance wallet for the account.
// Returns ErrAlreadyExists if one exists.
func (l *Ledger) CreateWallet(ctx context.Context, accountID AccountID) (Wallet, error) {
	return l.store.CreateWallet(ctx, accountID)
}

// GetBalance returns the account's current balance or ErrNotFound.
func (l *Ledger) GetBalance(ctx context.Context, accountID AccountID) (int, error) {
	w, err := l.store.GetWallet(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// ApplyDelta atomically adds delta to the account's balance and appends
// a BalanceChange with the resulting balance. Returns the new balance,
// or ErrNotFound when the account has no wallet.
func (l *Ledger) ApplyDelta(ctx context.Context, accountID AccountID, delta int, reason string) (int, error) {
	return l.ApplyDeltaAt(ctx, accountID, delta, reason, time.Now().UTC())
}

// ApplyDeltaAt is ApplyDelta with an explicit ledger timestamp. The
// settlement job uses the order's own timestamp so late runs keep
// historical accuracy.
func (l *Ledger) ApplyDeltaAt(ctx context.Context, accountID AccountID, delta int, reason string, at time.Time) (int, error) {
	var newBalance int
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		newBalance, err = ApplyDeltaTx(ctx, s, accountID, delta, reason, at)
		return err
	})
	return newBalance, err
}

// ApplyDeltaTx performs the read-modify-write against an already-open
// transaction. The engine and the settlement job call this from inside
// their own WithTx blocks so the balance check, wallet update, and
// ledger entry commit together.
func ApplyDeltaTx(ctx context.Context, s Store, accountID AccountID, delta int, reason string, at time.Time) (int, error) {
	w, err := s.GetWallet(ctx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := w.Balance + delta
	if err := s.SetWalletBalance(ctx, w.ID, newBalance); err != nil {
		return 0, err
	}

	change := BalanceChange{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		WalletID:       w.ID,
		Delta:          delta,
		CurrentBalance: newBalance,
		Reason:         reason,
		CreatedAt:      at,
	}
	if err := s.AppendChange(ctx, change); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// Changes returns the account's ledger entries, newest first. Accounts
// with no history get an empty slice, not an error.
func (l *Ledger) Changes(ctx context.Context, accountID AccountID) ([]BalanceChange, error) {
	return l.store.Changes(ctx, accountID)
}

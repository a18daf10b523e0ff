/*
engine.go - Combination engine

PURPOSE:
  Orchestrates the wallet ledger, discount catalog, combination
  registry and ownership tracker to perform a purchase, a combination
  or an activation as one consistent operation.

ATOMICITY:
  Every operation validates its preconditions and performs all writes
  inside a single store transaction. A failed precondition aborts with
  no side effects.

BALANCE INVARIANT:
  The engine checks cost <= balance before debiting, inside the same
  transaction as the debit, so sequences of accepted operations can
  never drive a wallet negative.
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reasons recorded on engine-written ledger entries.
const (
	ReasonPurchase    = "discount purchase"
	ReasonCombination = "discount combination"
)

// Engine performs the account-facing discount operations.
type Engine struct {
	store   TxStore
	tracker *Tracker
	log     *zap.SugaredLogger
}

// NewEngine creates an engine over the given store.
func NewEngine(store TxStore, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, tracker: NewTracker(store), log: log}
}

// PurchasePrimaryDiscount buys a primary discount with Exp. The
// discount must exist, be active and be primary; the wallet balance
// must cover the cost. On success the account gains one owned grant and
// the wallet is debited by the cost in the same transaction.
func (e *Engine) PurchasePrimaryDiscount(ctx context.Context, accountID AccountID, discountID DiscountID) (OwnedDiscount, error) {
	var grant OwnedDiscount
	err := e.store.WithTx(ctx, func(s Store) error {
		d, err := s.GetDiscount(ctx, discountID)
		if err != nil {
			return err
		}
		if !d.Active {
			return ErrNotActive
		}
		if !d.Primary {
			return ErrNotPrimary
		}

		w, err := s.GetWallet(ctx, accountID)
		if err != nil {
			return err
		}
		if d.Cost > w.Balance {
			return &InsufficientBalanceError{AccountID: accountID, Balance: w.Balance, Cost: d.Cost}
		}

		grant, err = s.InsertOwned(ctx, accountID, discountID, time.Now().UTC())
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("%s: %s", ReasonPurchase, d.Name)
		_, err = ApplyDeltaTx(ctx, s, accountID, -d.Cost, reason, time.Now().UTC())
		return err
	})
	if err != nil {
		return OwnedDiscount{}, err
	}

	e.log.Infow("primary discount purchased",
		"account", accountID, "discount", discountID, "grant", grant.ID)
	return grant, nil
}

// CombineDiscounts consumes two owned grants per the registry rule for
// the unordered pair and produces a grant of the resulting discount.
// The resulting discount's cost is debited from the wallet. All writes
// are one transaction.
func (e *Engine) CombineDiscounts(ctx context.Context, accountID AccountID, a, b DiscountID) (OwnedDiscount, error) {
	var grant OwnedDiscount
	err := e.store.WithTx(ctx, func(s Store) error {
		rule, ok, err := s.FindRuleByPair(ctx, a, b)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoSuchCombination
		}

		result, err := s.GetDiscount(ctx, rule.ResultID)
		if err != nil {
			return err
		}

		first, second, err := findOwnedPair(ctx, s, accountID, a, b)
		if err != nil {
			return err
		}

		w, err := s.GetWallet(ctx, accountID)
		if err != nil {
			return err
		}
		if result.Cost > w.Balance {
			return &InsufficientBalanceError{AccountID: accountID, Balance: w.Balance, Cost: result.Cost}
		}

		now := time.Now().UTC()
		if err := archiveOwned(ctx, s, first, now); err != nil {
			return err
		}
		if err := archiveOwned(ctx, s, second, now); err != nil {
			return err
		}

		reason := fmt.Sprintf("%s: %s", ReasonCombination, result.Name)
		if _, err := ApplyDeltaTx(ctx, s, accountID, -result.Cost, reason, now); err != nil {
			return err
		}

		grant, err = s.InsertOwned(ctx, accountID, rule.ResultID, now)
		return err
	})
	if err != nil {
		return OwnedDiscount{}, err
	}

	e.log.Infow("discounts combined",
		"account", accountID, "first", a, "second", b, "result_grant", grant.ID)
	return grant, nil
}

// ActivateDiscount converts an owned grant into an activated one.
// Delegates to the tracker; no balance effect.
func (e *Engine) ActivateDiscount(ctx context.Context, accountID AccountID, id GrantID) (ActivatedDiscount, error) {
	activated, err := e.tracker.Activate(ctx, id, accountID)
	if err != nil {
		return ActivatedDiscount{}, err
	}

	e.log.Infow("discount activated", "account", accountID, "grant", id)
	return activated, nil
}

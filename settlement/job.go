/*
job.go - Order settlement and user synchronization

PURPOSE:
  Converts purchases made in the external store into Exp wallet
  credits. Three phases, run in order on every scheduler tick:

    SyncUsers:    pull the user roster, upsert accounts, provision
                  missing wallets.
    SyncOrders:   pull orders placed after the persisted cursor into
                  the local queue, then advance the cursor.
    CalculateExp: convert every queued order into a ledger credit and
                  drain the queue. All credits and the drain commit in
                  one transaction.

CURSOR:
  The cursor lives in the config table under "LastDateOrder". It only
  advances after the fetched orders are committed, so a failed run
  re-fetches the same window instead of losing it. A fresh database
  starts from a fixed epoch far enough back to cover all history.

ROUNDING:
  exp = round(amount * rate), half away from zero. Amounts are decimal
  so a 99.99 order at rate 0.5 credits 50, not 49.

SEE ALSO:
  - client.go: the external store feeds
  - loyalty/wallet.go: ApplyDeltaTx, the in-transaction credit
  - api/scheduler.go: the ticker driving Run
*/
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prism/loyalty-engine/loyalty"
)

// ReasonPurchaseReward is the ledger reason for settlement credits.
const ReasonPurchaseReward = "purchase reward"

// DefaultExpRate converts currency to Exp when no rate is configured.
const DefaultExpRate = 1.0

// Job runs the settlement phases against one store.
type Job struct {
	store  loyalty.TxStore
	client *Client
	log    *zap.SugaredLogger
}

// NewJob creates a settlement job.
func NewJob(store loyalty.TxStore, client *Client, log *zap.SugaredLogger) *Job {
	return &Job{store: store, client: client, log: log}
}

// Run executes all three phases. A failed phase is logged and does not
// stop the later phases: CalculateExp still drains whatever the queue
// already holds.
func (j *Job) Run(ctx context.Context) error {
	var errs []error

	if err := j.SyncUsers(ctx); err != nil {
		j.log.Errorw("user sync failed", "error", err)
		errs = append(errs, fmt.Errorf("sync users: %w", err))
	}
	if err := j.SyncOrders(ctx); err != nil {
		j.log.Errorw("order sync failed", "error", err)
		errs = append(errs, fmt.Errorf("sync orders: %w", err))
	}
	if err := j.CalculateExp(ctx); err != nil {
		j.log.Errorw("exp calculation failed", "error", err)
		errs = append(errs, fmt.Errorf("calculate exp: %w", err))
	}

	return errors.Join(errs...)
}

// SyncUsers pulls the user roster, upserts accounts, and provisions a
// wallet for any account that has none.
func (j *Job) SyncUsers(ctx context.Context) error {
	users, err := j.client.FetchUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	created := 0
	err = j.store.WithTx(ctx, func(s loyalty.Store) error {
		for _, u := range users {
			account := u.toAccount()
			if err := s.UpsertAccount(ctx, account); err != nil {
				return err
			}
			_, err := s.GetWallet(ctx, account.ID)
			if errors.Is(err, loyalty.ErrNotFound) {
				if _, err := s.CreateWallet(ctx, account.ID); err != nil {
					return err
				}
				created++
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.log.Infow("user sync complete", "users", len(users), "wallets_created", created)
	return nil
}

// SyncOrders pulls orders placed after the cursor into the local queue
// and advances the cursor to the newest queued order. The cursor is
// written only after the inserts commit.
func (j *Job) SyncOrders(ctx context.Context) error {
	cursor, ok, err := j.store.ConfigDate(ctx, loyalty.ConfigLastOrderDate)
	if err != nil {
		return err
	}
	if !ok {
		cursor = loyalty.DefaultOrderCursor
	}

	records, err := j.client.FetchOrders(ctx, cursor)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		j.log.Debugw("no new orders", "cursor", cursor)
		return nil
	}

	err = j.store.WithTx(ctx, func(s loyalty.Store) error {
		for _, r := range records {
			if err := s.InsertOrder(ctx, r.toOrder()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	latest, ok, err := j.store.MaxOrderDate(ctx)
	if err != nil {
		return err
	}
	if ok {
		if err := j.store.SetConfigDate(ctx, loyalty.ConfigLastOrderDate, latest); err != nil {
			return err
		}
	}

	j.log.Infow("order sync complete", "orders", len(records), "cursor", latest)
	return nil
}

// CalculateExp converts every queued order into a wallet credit and
// drains the queue. The credits and the drain commit atomically, so a
// mid-batch failure leaves the queue intact and no account credited.
func (j *Job) CalculateExp(ctx context.Context) error {
	rate, ok, err := j.store.ConfigFloat(ctx, loyalty.ConfigExpRate)
	if err != nil {
		return err
	}
	if !ok {
		rate = DefaultExpRate
	}
	rateDec := decimal.NewFromFloat(rate)

	credited, skipped := 0, 0
	err = j.store.WithTx(ctx, func(s loyalty.Store) error {
		orders, err := s.ListOrders(ctx)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		for _, o := range orders {
			exp := int(o.Amount.Mul(rateDec).Round(0).IntPart())
			_, err := loyalty.ApplyDeltaTx(ctx, s, o.AccountID, exp, ReasonPurchaseReward, o.PlacedAt)
			if errors.Is(err, loyalty.ErrNotFound) {
				// An order from an account the user sync has not seen
				// yet. Dropped with the rest of the queue; the next
				// order sync will not re-deliver it.
				j.log.Warnw("skipping order for account without wallet",
					"account_id", o.AccountID, "order_id", o.ID, "amount", o.Amount)
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			credited++
		}
		return s.DeleteAllOrders(ctx)
	})
	if err != nil {
		return err
	}

	if credited > 0 || skipped > 0 {
		j.log.Infow("exp settlement complete", "credited", credited, "skipped", skipped, "rate", rate)
	}
	return nil
}

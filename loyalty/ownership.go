/*
ownership.go - Discount grant lifecycle tracker

PURPOSE:
  Owns the per-account sets of un-activated, activated and historical
  discount grants.

STATE MACHINE PER GRANT:
  Owned --activate--> Activated (terminal)
  Owned --consumed by combination--> removed
  Both outgoing edges archive exactly one Historical row preserving the
  grant's original id and timestamp.
*/
package loyalty

import (
	"context"
	"time"
)

// Tracker owns the grant lifecycle tables.
type Tracker struct {
	store TxStore
}

// NewTracker creates a tracker over the given store.
func NewTracker(store TxStore) *Tracker {
	return &Tracker{store: store}
}

// Grant inserts a new owned record with the current timestamp. No
// dedup: an account may hold multiple grants of the same discount.
func (t *Tracker) Grant(ctx context.Context, accountID AccountID, discountID DiscountID) (OwnedDiscount, error) {
	return t.store.InsertOwned(ctx, accountID, discountID, time.Now().UTC())
}

// Activate converts an owned grant into an activated one: the owned row
// is archived to history (keeping its original id and grant timestamp),
// deleted, and an activated row inserted - atomically. ErrNotFound when
// no owned grant with that id belongs to the account.
func (t *Tracker) Activate(ctx context.Context, id GrantID, accountID AccountID) (ActivatedDiscount, error) {
	var activated ActivatedDiscount
	err := t.store.WithTx(ctx, func(s Store) error {
		owned, err := s.GetOwned(ctx, id, accountID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := archiveOwned(ctx, s, owned, now); err != nil {
			return err
		}

		activated, err = s.InsertActivated(ctx, owned.AccountID, owned.DiscountID, now)
		return err
	})
	return activated, err
}

// archiveOwned writes the historical row for an owned grant and removes
// it. Shared by activation and combination consumption.
func archiveOwned(ctx context.Context, s Store, owned OwnedDiscount, removedAt time.Time) error {
	h := HistoricalDiscount{
		GrantID:    owned.ID,
		AccountID:  owned.AccountID,
		DiscountID: owned.DiscountID,
		GrantedAt:  owned.GrantedAt,
		RemovedAt:  removedAt,
	}
	if err := s.InsertHistory(ctx, h); err != nil {
		return err
	}
	return s.DeleteOwned(ctx, owned.ID)
}

// FindOwnedPair locates the account's owned grants for the two input
// discounts of a combination. When both discounts are the same, two
// distinct grants are required. Locate-only: the caller archives and
// removes the grants inside its own transaction. ErrNotFound when
// either grant is missing.
func (t *Tracker) FindOwnedPair(ctx context.Context, accountID AccountID, a, b DiscountID) (OwnedDiscount, OwnedDiscount, error) {
	return findOwnedPair(ctx, t.store, accountID, a, b)
}

func findOwnedPair(ctx context.Context, s Store, accountID AccountID, a, b DiscountID) (OwnedDiscount, OwnedDiscount, error) {
	first, err := s.FindOwnedByDiscount(ctx, accountID, a, 0)
	if err != nil {
		return OwnedDiscount{}, OwnedDiscount{}, err
	}
	second, err := s.FindOwnedByDiscount(ctx, accountID, b, first.ID)
	if err != nil {
		return OwnedDiscount{}, OwnedDiscount{}, err
	}
	return first, second, nil
}

// ListForAccount returns the account's owned and activated grants,
// enriched with catalog fields. Accounts with no grants get empty
// slices, not an error.
func (t *Tracker) ListForAccount(ctx context.Context, accountID AccountID) (owned, activated []GrantView, err error) {
	ownedRows, err := t.store.ListOwned(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	activatedRows, err := t.store.ListActivated(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	owned = make([]GrantView, 0, len(ownedRows))
	for _, o := range ownedRows {
		v, err := t.grantView(ctx, int64(o.ID), o.DiscountID, o.GrantedAt, false)
		if err != nil {
			return nil, nil, err
		}
		owned = append(owned, v)
	}

	activated = make([]GrantView, 0, len(activatedRows))
	for _, a := range activatedRows {
		v, err := t.grantView(ctx, a.ID, a.DiscountID, a.ActivatedAt, true)
		if err != nil {
			return nil, nil, err
		}
		activated = append(activated, v)
	}

	return owned, activated, nil
}

func (t *Tracker) grantView(ctx context.Context, id int64, discountID DiscountID, since time.Time, activated bool) (GrantView, error) {
	d, err := t.store.GetDiscount(ctx, discountID)
	if err != nil {
		return GrantView{}, err
	}
	return GrantView{
		ID:          id,
		DiscountID:  discountID,
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active,
		Percent:     d.Percent,
		Cost:        d.Cost,
		Primary:     d.Primary,
		StartAt:     d.StartAt,
		EndAt:       d.EndAt,
		Since:       since,
		Activated:   activated,
	}, nil
}

// History returns every historical row (admin view).
func (t *Tracker) History(ctx context.Context) ([]HistoricalDiscount, error) {
	return t.store.ListAllHistory(ctx)
}

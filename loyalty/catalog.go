/*
catalog.go - Discount catalog

PURPOSE:
  Administrator-facing CRUD over discount definitions. The catalog
  validates scoping references against the product/category tables the
  external sync maintains, but treats the ids themselves as opaque.

UPDATE SEMANTICS:
  Update is a true in-place field update preserving the row's identity.
  Ownership and history rows keep valid foreign keys across edits.
*/
package loyalty

import (
	"context"
	"time"
)

// Catalog owns discount definitions and their active/inactive state.
type Catalog struct {
	store Store
}

// NewCatalog creates a catalog over the given store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// Create validates every scoping reference and persists the discount.
// Fails with ErrInvalidReference when a listed product or category does
// not exist.
func (c *Catalog) Create(ctx context.Context, d Discount) (Discount, error) {
	if err := c.validateScoping(ctx, d); err != nil {
		return Discount{}, err
	}
	return c.store.InsertDiscount(ctx, d)
}

// Update replaces the discount's fields in place. Same reference
// validation as Create; ErrNotFound when the discount is absent.
func (c *Catalog) Update(ctx context.Context, d Discount) (Discount, error) {
	if err := c.validateScoping(ctx, d); err != nil {
		return Discount{}, err
	}
	if err := c.store.UpdateDiscount(ctx, d); err != nil {
		return Discount{}, err
	}
	return c.store.GetDiscount(ctx, d.ID)
}

func (c *Catalog) validateScoping(ctx context.Context, d Discount) error {
	if len(d.ProductIDs) > 0 {
		missing, err := c.store.MissingProducts(ctx, d.ProductIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &InvalidReferenceError{Kind: "product", Missing: missing}
		}
	}
	if len(d.CategoryIDs) > 0 {
		missing, err := c.store.MissingCategories(ctx, d.CategoryIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return &InvalidReferenceError{Kind: "category", Missing: missing}
		}
	}
	return nil
}

// SetActive toggles the soft-enable flag. ErrNotFound when missing,
// ErrNoOp when the flag already matches.
func (c *Catalog) SetActive(ctx context.Context, id DiscountID, active bool) (Discount, error) {
	d, err := c.store.GetDiscount(ctx, id)
	if err != nil {
		return Discount{}, err
	}
	if d.Active == active {
		return Discount{}, ErrNoOp
	}
	d.Active = active
	if err := c.store.UpdateDiscount(ctx, d); err != nil {
		return Discount{}, err
	}
	return d, nil
}

// Get returns the discount with its scoping lists, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id DiscountID) (Discount, error) {
	return c.store.GetDiscount(ctx, id)
}

// List returns every discount.
func (c *Catalog) List(ctx context.Context) ([]Discount, error) {
	return c.store.ListDiscounts(ctx)
}

// ListPrimary returns active primary discounts whose validity window
// has not ended. This is the purchasable set shown to users.
func (c *Catalog) ListPrimary(ctx context.Context, now time.Time) ([]Discount, error) {
	all, err := c.store.ListDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	primary := make([]Discount, 0, len(all))
	for _, d := range all {
		if d.Primary && d.Active && !d.Expired(now) {
			primary = append(primary, d)
		}
	}
	return primary, nil
}

// ListNonPrimary returns discounts eligible to be a combination result.
// Primary discounts are purchase-only endpoints, never rule outputs.
func (c *Catalog) ListNonPrimary(ctx context.Context) ([]Discount, error) {
	all, err := c.store.ListDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	derived := make([]Discount, 0, len(all))
	for _, d := range all {
		if !d.Primary {
			derived = append(derived, d)
		}
	}
	return derived, nil
}

// Delete removes the discount, returning the removed definition or
// ErrNotFound.
func (c *Catalog) Delete(ctx context.Context, id DiscountID) (Discount, error) {
	d, err := c.store.GetDiscount(ctx, id)
	if err != nil {
		return Discount{}, err
	}
	if err := c.store.DeleteDiscount(ctx, id); err != nil {
		return Discount{}, err
	}
	return d, nil
}

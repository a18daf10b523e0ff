package loyalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/loyalty-engine/loyalty"
)

func TestCatalog_Create_WithScoping(t *testing.T) {
	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)
	ctx := context.Background()

	require.NoError(t, store.UpsertProduct(ctx, 100, "Mechanical Keyboard"))
	require.NoError(t, store.UpsertCategory(ctx, 7, "Peripherals"))

	created, err := catalog.Create(ctx, loyalty.Discount{
		Name:        "Peripherals Week",
		Active:      true,
		Percent:     15,
		Cost:        20,
		Primary:     true,
		StartAt:     time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		ProductIDs:  []int64{100},
		CategoryIDs: []int64{7},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	fetched, err := catalog.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, fetched.ProductIDs)
	assert.Equal(t, []int64{7}, fetched.CategoryIDs)
}

func TestCatalog_Create_UnknownReference(t *testing.T) {
	// GIVEN: No product 555 exists
	// WHEN: Creating a discount scoped to it
	// THEN: ErrInvalidReference naming the missing id

	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)

	_, err := catalog.Create(context.Background(), loyalty.Discount{
		Name:       "Ghost Product",
		StartAt:    time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		ProductIDs: []int64{555},
	})
	assert.ErrorIs(t, err, loyalty.ErrInvalidReference)

	var refErr *loyalty.InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "product", refErr.Kind)
	assert.Equal(t, []int64{555}, refErr.Missing)
}

func TestCatalog_Update_InPlace(t *testing.T) {
	// GIVEN: An existing discount with an outstanding grant
	// WHEN: Updating its fields
	// THEN: The id is preserved, so the grant still resolves

	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)
	ctx := context.Background()

	d := seedDiscount(t, store, "Before", 10, true, true)

	tracker := loyalty.NewTracker(store)
	grant, err := tracker.Grant(ctx, 1, d.ID)
	require.NoError(t, err)

	d.Name = "After"
	d.Cost = 25
	updated, err := catalog.Update(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, d.ID, updated.ID)
	assert.Equal(t, "After", updated.Name)
	assert.Equal(t, 25, updated.Cost)

	stillOwned, err := store.GetOwned(ctx, grant.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, d.ID, stillOwned.DiscountID)
}

func TestCatalog_Update_NotFound(t *testing.T) {
	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)

	_, err := catalog.Update(context.Background(), loyalty.Discount{
		ID:      424242,
		Name:    "Missing",
		StartAt: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestCatalog_SetActive(t *testing.T) {
	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)
	ctx := context.Background()

	d := seedDiscount(t, store, "Toggle", 10, false, true)

	enabled, err := catalog.SetActive(ctx, d.ID, true)
	require.NoError(t, err)
	assert.True(t, enabled.Active)

	// Same value again is a no-op, not a silent success
	_, err = catalog.SetActive(ctx, d.ID, true)
	assert.ErrorIs(t, err, loyalty.ErrNoOp)

	_, err = catalog.SetActive(ctx, 999, true)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestCatalog_ListPrimary(t *testing.T) {
	// GIVEN: A mix of primary/non-primary, active/inactive, expired
	// WHEN: Listing the purchasable set
	// THEN: Only active, primary, unexpired discounts appear

	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)
	ctx := context.Background()

	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	past := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)

	good := seedDiscount(t, store, "Good", 10, true, true)
	seedDiscount(t, store, "Inactive", 10, false, true)
	seedDiscount(t, store, "Derived", 10, true, false)

	expired, err := store.InsertDiscount(ctx, loyalty.Discount{
		Name: "Expired", Active: true, Primary: true,
		StartAt: past.AddDate(0, -1, 0), EndAt: &past,
	})
	require.NoError(t, err)

	open, err := store.InsertDiscount(ctx, loyalty.Discount{
		Name: "Still Open", Active: true, Primary: true,
		StartAt: past, EndAt: &future,
	})
	require.NoError(t, err)

	primary, err := catalog.ListPrimary(ctx, now)
	require.NoError(t, err)

	ids := make(map[loyalty.DiscountID]bool)
	for _, d := range primary {
		ids[d.ID] = true
	}
	assert.Len(t, primary, 2)
	assert.True(t, ids[good.ID])
	assert.True(t, ids[open.ID])
	assert.False(t, ids[expired.ID])
}

func TestCatalog_ListNonPrimary(t *testing.T) {
	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)

	seedDiscount(t, store, "Primary", 10, true, true)
	derived := seedDiscount(t, store, "Derived", 10, true, false)

	list, err := catalog.ListNonPrimary(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, derived.ID, list[0].ID)
}

func TestCatalog_Delete(t *testing.T) {
	store := newTestStore(t)
	catalog := loyalty.NewCatalog(store)
	ctx := context.Background()

	d := seedDiscount(t, store, "Doomed", 10, true, true)

	removed, err := catalog.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doomed", removed.Name)

	_, err = catalog.Get(ctx, d.ID)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	_, err = catalog.Delete(ctx, d.ID)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

package loyalty_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/loyalty-engine/loyalty"
	"github.com/prism/loyalty-engine/store/sqlite"
)

func newTestTracker(t *testing.T) (*loyalty.Tracker, *sqlite.Store) {
	store := newTestStore(t)
	return loyalty.NewTracker(store), store
}

func TestTracker_Grant_NoDedup(t *testing.T) {
	// GIVEN: An account already holding a grant of a discount
	// WHEN: The same discount is granted again
	// THEN: A second independent grant exists

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	d := seedDiscount(t, store, "Stacked", 10, true, true)

	first, err := tracker.Grant(ctx, 1, d.ID)
	require.NoError(t, err)
	second, err := tracker.Grant(ctx, 1, d.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	rows, err := store.ListOwned(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTracker_Activate(t *testing.T) {
	// GIVEN: An account with one owned grant
	// WHEN: The grant is activated
	// THEN: It moves to the activated set and a history row keeps the
	//       original grant id and timestamp

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	d := seedDiscount(t, store, "Weekender", 10, true, true)
	grant, err := tracker.Grant(ctx, 7, d.ID)
	require.NoError(t, err)

	activated, err := tracker.Activate(ctx, grant.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, d.ID, activated.DiscountID)
	assert.Equal(t, loyalty.AccountID(7), activated.AccountID)

	owned, err := store.ListOwned(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, owned)

	history, err := tracker.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, grant.ID, history[0].GrantID)
	assert.True(t, history[0].GrantedAt.Equal(grant.GrantedAt))
	assert.False(t, history[0].RemovedAt.IsZero())
}

func TestTracker_Activate_WrongAccount(t *testing.T) {
	// GIVEN: A grant belonging to account 1
	// WHEN: Account 2 tries to activate it
	// THEN: The activation fails and the grant stays owned

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	d := seedDiscount(t, store, "Private", 10, true, true)
	grant, err := tracker.Grant(ctx, 1, d.ID)
	require.NoError(t, err)

	_, err = tracker.Activate(ctx, grant.ID, 2)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	owned, err := store.ListOwned(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	history, err := tracker.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTracker_FindOwnedPair(t *testing.T) {
	// GIVEN: An account holding grants of discounts A and B
	// WHEN: The pair (A, B) is located
	// THEN: Two distinct grants come back, one per discount

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "A", 10, true, true)
	b := seedDiscount(t, store, "B", 10, true, true)

	ga, err := tracker.Grant(ctx, 1, a.ID)
	require.NoError(t, err)
	gb, err := tracker.Grant(ctx, 1, b.ID)
	require.NoError(t, err)

	first, second, err := tracker.FindOwnedPair(ctx, 1, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, ga.ID, first.ID)
	assert.Equal(t, gb.ID, second.ID)
}

func TestTracker_FindOwnedPair_SameDiscount(t *testing.T) {
	// GIVEN: An account holding a single grant of discount A
	// WHEN: The pair (A, A) is located
	// THEN: The lookup fails until a second grant of A exists

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "A", 10, true, true)

	g1, err := tracker.Grant(ctx, 1, a.ID)
	require.NoError(t, err)

	_, _, err = tracker.FindOwnedPair(ctx, 1, a.ID, a.ID)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)

	g2, err := tracker.Grant(ctx, 1, a.ID)
	require.NoError(t, err)

	first, second, err := tracker.FindOwnedPair(ctx, 1, a.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, first.ID) // oldest grant first
	assert.Equal(t, g2.ID, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTracker_FindOwnedPair_OtherAccountGrant(t *testing.T) {
	// GIVEN: Account 2 holds discount B, account 1 only holds A
	// WHEN: Account 1 locates the pair (A, B)
	// THEN: The lookup fails; grants are never borrowed across accounts

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "A", 10, true, true)
	b := seedDiscount(t, store, "B", 10, true, true)

	_, err := tracker.Grant(ctx, 1, a.ID)
	require.NoError(t, err)
	_, err = tracker.Grant(ctx, 2, b.ID)
	require.NoError(t, err)

	_, _, err = tracker.FindOwnedPair(ctx, 1, a.ID, b.ID)
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestTracker_ListForAccount(t *testing.T) {
	// GIVEN: An account with one owned and one activated grant
	// WHEN: Its grants are listed
	// THEN: Both views carry the catalog fields and the right flag

	tracker, store := newTestTracker(t)
	ctx := context.Background()

	d1 := seedDiscount(t, store, "Owned One", 25, true, true)
	d2 := seedDiscount(t, store, "Activated One", 40, true, true)

	_, err := tracker.Grant(ctx, 5, d1.ID)
	require.NoError(t, err)
	g2, err := tracker.Grant(ctx, 5, d2.ID)
	require.NoError(t, err)
	_, err = tracker.Activate(ctx, g2.ID, 5)
	require.NoError(t, err)

	owned, activated, err := tracker.ListForAccount(ctx, 5)
	require.NoError(t, err)

	require.Len(t, owned, 1)
	assert.Equal(t, "Owned One", owned[0].Name)
	assert.Equal(t, 25, owned[0].Cost)
	assert.False(t, owned[0].Activated)

	require.Len(t, activated, 1)
	assert.Equal(t, "Activated One", activated[0].Name)
	assert.True(t, activated[0].Activated)
}

func TestTracker_ListForAccount_Empty(t *testing.T) {
	// GIVEN: An account with no grants at all
	// WHEN: Its grants are listed
	// THEN: Empty slices, not an error

	tracker, _ := newTestTracker(t)

	owned, activated, err := tracker.ListForAccount(context.Background(), 99)
	require.NoError(t, err)
	assert.NotNil(t, owned)
	assert.Empty(t, owned)
	assert.NotNil(t, activated)
	assert.Empty(t, activated)
}

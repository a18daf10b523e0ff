package loyalty_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/loyalty-engine/loyalty"
	"github.com/prism/loyalty-engine/store/sqlite"
)

func newTestRegistry(t *testing.T) (*loyalty.Registry, *sqlite.Store) {
	store := newTestStore(t)
	return loyalty.NewRegistry(store), store
}

func TestRegistry_CreateAndFindByPair(t *testing.T) {
	// GIVEN: Two active primary inputs and an active non-primary result
	// WHEN: A rule is created over them
	// THEN: FindByPair resolves the pair in both orders

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	b := seedDiscount(t, store, "Input B", 30, true, true)
	result := seedDiscount(t, store, "Combined", 0, true, false)

	rule, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: result.ID, FirstID: a.ID, SecondID: b.ID,
	})
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)

	found, ok, err := registry.FindByPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule.ID, found.ID)

	// Reversed order hits the same rule.
	found, ok, err = registry.FindByPair(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule.ID, found.ID)
}

func TestRegistry_Create_DuplicatePair(t *testing.T) {
	// GIVEN: An existing rule for the pair (A, B)
	// WHEN: A second rule is created for (A, B) or for (B, A)
	// THEN: Both attempts are rejected as duplicates

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	b := seedDiscount(t, store, "Input B", 30, true, true)
	r1 := seedDiscount(t, store, "Result One", 0, true, false)
	r2 := seedDiscount(t, store, "Result Two", 0, true, false)

	_, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: r1.ID, FirstID: a.ID, SecondID: b.ID,
	})
	require.NoError(t, err)

	_, err = registry.Create(ctx, loyalty.CombinationRule{
		ResultID: r2.ID, FirstID: a.ID, SecondID: b.ID,
	})
	assert.ErrorIs(t, err, loyalty.ErrAlreadyExists)

	_, err = registry.Create(ctx, loyalty.CombinationRule{
		ResultID: r2.ID, FirstID: b.ID, SecondID: a.ID,
	})
	assert.ErrorIs(t, err, loyalty.ErrAlreadyExists)
}

func TestRegistry_Create_Validation(t *testing.T) {
	// GIVEN: Discounts in various invalid states for a rule
	// WHEN: A rule referencing them is created
	// THEN: Each case is rejected with the offending leg identified

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	active := seedDiscount(t, store, "Active Input", 30, true, true)
	inactive := seedDiscount(t, store, "Inactive Input", 30, false, true)
	result := seedDiscount(t, store, "Valid Result", 0, true, false)
	primaryResult := seedDiscount(t, store, "Primary Result", 0, true, true)
	inactiveResult := seedDiscount(t, store, "Inactive Result", 0, false, false)

	cases := []struct {
		name     string
		rule     loyalty.CombinationRule
		position string
		cause    error
	}{
		{
			name:     "missing result",
			rule:     loyalty.CombinationRule{ResultID: 999, FirstID: active.ID, SecondID: active.ID},
			position: "result",
			cause:    loyalty.ErrNotFound,
		},
		{
			name:     "primary result",
			rule:     loyalty.CombinationRule{ResultID: primaryResult.ID, FirstID: active.ID, SecondID: active.ID},
			position: "result",
			cause:    loyalty.ErrNotPrimary,
		},
		{
			name:     "inactive result",
			rule:     loyalty.CombinationRule{ResultID: inactiveResult.ID, FirstID: active.ID, SecondID: active.ID},
			position: "result",
			cause:    loyalty.ErrNotActive,
		},
		{
			name:     "missing first input",
			rule:     loyalty.CombinationRule{ResultID: result.ID, FirstID: 999, SecondID: active.ID},
			position: "first",
			cause:    loyalty.ErrNotFound,
		},
		{
			name:     "inactive second input",
			rule:     loyalty.CombinationRule{ResultID: result.ID, FirstID: active.ID, SecondID: inactive.ID},
			position: "second",
			cause:    loyalty.ErrNotActive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Create(ctx, tc.rule)
			assert.ErrorIs(t, err, loyalty.ErrInvalidRule)

			var valErr *loyalty.RuleValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tc.position, valErr.Position)
			assert.ErrorIs(t, valErr.Cause, tc.cause)
		})
	}
}

func TestRegistry_Update(t *testing.T) {
	// GIVEN: An existing rule
	// WHEN: Its result is swapped for another valid discount
	// THEN: The rule keeps its id and lookup reflects the change

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	b := seedDiscount(t, store, "Input B", 30, true, true)
	r1 := seedDiscount(t, store, "Result One", 0, true, false)
	r2 := seedDiscount(t, store, "Result Two", 0, true, false)

	rule, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: r1.ID, FirstID: a.ID, SecondID: b.ID,
	})
	require.NoError(t, err)

	rule.ResultID = r2.ID
	updated, err := registry.Update(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)

	found, ok, err := registry.FindByPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r2.ID, found.ResultID)
}

func TestRegistry_Update_PairCollision(t *testing.T) {
	// GIVEN: Two rules over distinct pairs
	// WHEN: The second is re-pointed at the first rule's pair
	// THEN: The update is rejected, but re-saving a rule over its own
	//       pair still works

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	b := seedDiscount(t, store, "Input B", 30, true, true)
	c := seedDiscount(t, store, "Input C", 30, true, true)
	result := seedDiscount(t, store, "Result", 0, true, false)

	first, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: result.ID, FirstID: a.ID, SecondID: b.ID,
	})
	require.NoError(t, err)

	second, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: result.ID, FirstID: b.ID, SecondID: c.ID,
	})
	require.NoError(t, err)

	second.FirstID, second.SecondID = a.ID, b.ID
	_, err = registry.Update(ctx, second)
	assert.ErrorIs(t, err, loyalty.ErrAlreadyExists)

	// Updating a rule without moving its pair is not a collision.
	_, err = registry.Update(ctx, first)
	assert.NoError(t, err)
}

func TestRegistry_Update_NotFound(t *testing.T) {
	// GIVEN: A valid rule body with an id nothing was stored under
	// WHEN: Update runs
	// THEN: ErrNotFound

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	result := seedDiscount(t, store, "Result", 0, true, false)

	_, err := registry.Update(ctx, loyalty.CombinationRule{
		ID: 404, ResultID: result.ID, FirstID: a.ID, SecondID: a.ID,
	})
	assert.ErrorIs(t, err, loyalty.ErrNotFound)
}

func TestRegistry_ListViews(t *testing.T) {
	// GIVEN: A rule whose result discount is later deleted
	// WHEN: The rules are listed
	// THEN: Surviving names are resolved, the deleted one is blank

	registry, store := newTestRegistry(t)
	ctx := context.Background()

	a := seedDiscount(t, store, "Input A", 30, true, true)
	b := seedDiscount(t, store, "Input B", 30, true, true)
	result := seedDiscount(t, store, "Combined", 0, true, false)

	rule, err := registry.Create(ctx, loyalty.CombinationRule{
		ResultID: result.ID, FirstID: a.ID, SecondID: b.ID,
	})
	require.NoError(t, err)

	view, err := registry.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Combined", view.ResultName)
	assert.Equal(t, "Input A", view.FirstName)
	assert.Equal(t, "Input B", view.SecondName)

	require.NoError(t, store.DeleteDiscount(ctx, result.ID))

	views, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].ResultName)
	assert.Equal(t, "Input A", views[0].FirstName)
}

package settlement_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prism/loyalty-engine/loyalty"
	"github.com/prism/loyalty-engine/settlement"
	"github.com/prism/loyalty-engine/store/sqlite"
)

// fakeStoreService stands in for the external store system, serving
// canned users and orders and remembering the cursor it was asked for.
type fakeStoreService struct {
	users      []settlement.UserRecord
	orders     []settlement.OrderRecord
	lastCursor string
}

func (f *fakeStoreService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync_users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.users)
	})
	mux.HandleFunc("/sync_orders", func(w http.ResponseWriter, r *http.Request) {
		f.lastCursor = r.URL.Query().Get("last_sync_date")
		_ = json.NewEncoder(w).Encode(f.orders)
	})
	return mux
}

func newTestJob(t *testing.T, fake *fakeStoreService) (*settlement.Job, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := settlement.NewClient(srv.URL, 5*time.Second)
	return settlement.NewJob(store, client, zap.NewNop().Sugar()), store
}

func TestJob_SyncUsers_ProvisionsWallets(t *testing.T) {
	// GIVEN: The store service reports two users, one of them an admin
	// WHEN: The user sync runs
	// THEN: Both get an account row and a zero-balance wallet

	fake := &fakeStoreService{users: []settlement.UserRecord{
		{ID: 1, Name: "Alice", Email: "alice@example.com", Admin: true},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
	}}
	job, store := newTestJob(t, fake)
	ctx := context.Background()

	require.NoError(t, job.SyncUsers(ctx))

	account, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", account.Name)
	assert.True(t, account.Admin)

	for _, id := range []loyalty.AccountID{1, 2} {
		wallet, err := store.GetWallet(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, wallet.Balance)
	}

	// A second sync is idempotent: no duplicate wallet error.
	require.NoError(t, job.SyncUsers(ctx))
}

func TestJob_SyncOrders_DefaultCursor(t *testing.T) {
	// GIVEN: No cursor has ever been stored
	// WHEN: The order sync runs
	// THEN: The store service is asked for orders since the epoch cursor

	fake := &fakeStoreService{}
	job, _ := newTestJob(t, fake)

	require.NoError(t, job.SyncOrders(context.Background()))

	sent, err := time.Parse(time.RFC3339, fake.lastCursor)
	require.NoError(t, err)
	assert.True(t, sent.Equal(loyalty.DefaultOrderCursor))
}

func TestJob_SyncOrders_AdvancesCursor(t *testing.T) {
	// GIVEN: The store service returns two orders with distinct dates
	// WHEN: The order sync runs
	// THEN: Both orders are queued and the cursor moves to the newest

	older := time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, time.February, 3, 9, 30, 0, 0, time.UTC)
	fake := &fakeStoreService{orders: []settlement.OrderRecord{
		{AccountID: 1, Amount: decimal.NewFromInt(100), PlacedAt: older},
		{AccountID: 2, Amount: decimal.NewFromInt(250), PlacedAt: newer},
	}}
	job, store := newTestJob(t, fake)
	ctx := context.Background()

	require.NoError(t, job.SyncOrders(ctx))

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	cursor, ok, err := store.ConfigDate(ctx, loyalty.ConfigLastOrderDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cursor.Equal(newer))
}

func TestJob_CalculateExp(t *testing.T) {
	// GIVEN: A configured rate of 0.5 and a queued 200-currency order
	// WHEN: Exp calculation runs
	// THEN: The wallet is credited 100 Exp with the order's own
	//       timestamp and the queue is drained

	fake := &fakeStoreService{}
	job, store := newTestJob(t, fake)
	ctx := context.Background()

	require.NoError(t, store.SetConfigFloat(ctx, loyalty.ConfigExpRate, 0.5))
	_, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)

	placedAt := time.Date(2026, time.March, 5, 12, 30, 0, 0, time.UTC)
	require.NoError(t, store.InsertOrder(ctx, loyalty.Order{
		AccountID: 1,
		Amount:    decimal.NewFromInt(200),
		PlacedAt:  placedAt,
	}))

	require.NoError(t, job.CalculateExp(ctx))

	wallet, err := store.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, wallet.Balance)

	changes, err := store.Changes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 100, changes[0].Delta)
	assert.Equal(t, settlement.ReasonPurchaseReward, changes[0].Reason)
	assert.True(t, changes[0].CreatedAt.Equal(placedAt))

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestJob_CalculateExp_EmptyQueue(t *testing.T) {
	// GIVEN: No queued orders
	// WHEN: Exp calculation runs
	// THEN: It is a no-op

	fake := &fakeStoreService{}
	job, _ := newTestJob(t, fake)

	assert.NoError(t, job.CalculateExp(context.Background()))
}

func TestJob_CalculateExp_MissingWallet(t *testing.T) {
	// GIVEN: Two queued orders, one for an account with no wallet
	// WHEN: Exp calculation runs
	// THEN: The walletless order is dropped, the other credited, and
	//       the queue is fully drained

	fake := &fakeStoreService{}
	job, store := newTestJob(t, fake)
	ctx := context.Background()

	_, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)

	at := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertOrder(ctx, loyalty.Order{AccountID: 1, Amount: decimal.NewFromInt(30), PlacedAt: at}))
	require.NoError(t, store.InsertOrder(ctx, loyalty.Order{AccountID: 42, Amount: decimal.NewFromInt(70), PlacedAt: at}))

	require.NoError(t, job.CalculateExp(ctx))

	wallet, err := store.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 30, wallet.Balance)

	orders, err := store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestJob_Run_EndToEnd(t *testing.T) {
	// GIVEN: The store service reports one user and one of their orders
	// WHEN: A full settlement run executes
	// THEN: The user has a wallet credited at the default 1:1 rate

	placedAt := time.Date(2026, time.May, 10, 8, 0, 0, 0, time.UTC)
	fake := &fakeStoreService{
		users: []settlement.UserRecord{{ID: 3, Name: "Carol", Email: "carol@example.com"}},
		orders: []settlement.OrderRecord{
			{AccountID: 3, Amount: decimal.NewFromFloat(149.6), PlacedAt: placedAt},
		},
	}
	job, store := newTestJob(t, fake)
	ctx := context.Background()

	require.NoError(t, job.Run(ctx))

	wallet, err := store.GetWallet(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 150, wallet.Balance) // 149.6 rounded

	cursor, ok, err := store.ConfigDate(ctx, loyalty.ConfigLastOrderDate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cursor.Equal(placedAt))
}

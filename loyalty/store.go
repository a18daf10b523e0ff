/*
store.go - Persistence interfaces for the loyalty engine

PURPOSE:
  Defines the contract between the domain logic and the database.
  Interfaces are grouped per concern; Store aggregates them and TxStore
  adds atomic multi-write support.

ATOMICITY CONTRACT:
  Engine operations (purchase, combine, activate) and the settlement
  batch run inside TxStore.WithTx: the callback receives a Store bound
  to one database transaction, and either every write commits or none
  does. Handlers never call the write methods outside WithTx.

LEDGER CONTRACT:
  balance_changes is append-only. No update or delete methods exist for
  it; corrections are new entries with opposite sign.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store

SEE ALSO:
  - wallet.go, engine.go: primary consumers
  - store/sqlite/sqlite.go: concrete implementation
*/
package loyalty

import (
	"context"
	"time"
)

// =============================================================================
// WALLETS & LEDGER
// =============================================================================

// WalletStore persists wallets and their append-only change log.
type WalletStore interface {
	// CreateWallet provisions a zero-balance wallet.
	// Returns ErrAlreadyExists if the account already has one.
	CreateWallet(ctx context.Context, accountID AccountID) (Wallet, error)

	// GetWallet returns the account's wallet or ErrNotFound.
	GetWallet(ctx context.Context, accountID AccountID) (Wallet, error)

	// SetWalletBalance overwrites the stored balance. Callers go through
	// Ledger.ApplyDelta, which pairs this with an AppendChange in one
	// transaction.
	SetWalletBalance(ctx context.Context, walletID int64, balance int) error

	// AppendChange inserts one immutable ledger entry.
	AppendChange(ctx context.Context, change BalanceChange) error

	// Changes returns an account's ledger entries, newest first.
	Changes(ctx context.Context, accountID AccountID) ([]BalanceChange, error)

	// AllChanges returns every ledger entry, newest first (admin view).
	AllChanges(ctx context.Context) ([]BalanceChange, error)
}

// =============================================================================
// CATALOG
// =============================================================================

// CatalogStore persists discounts and their scoping lists, plus the
// product/category reference tables populated by the external sync.
type CatalogStore interface {
	InsertDiscount(ctx context.Context, d Discount) (Discount, error)

	// UpdateDiscount replaces the discount's fields in place, preserving
	// row identity. Returns ErrNotFound if absent.
	UpdateDiscount(ctx context.Context, d Discount) error

	GetDiscount(ctx context.Context, id DiscountID) (Discount, error)
	ListDiscounts(ctx context.Context) ([]Discount, error)
	DeleteDiscount(ctx context.Context, id DiscountID) error

	// MissingProducts returns the subset of ids with no product row.
	MissingProducts(ctx context.Context, ids []int64) ([]int64, error)
	// MissingCategories returns the subset of ids with no category row.
	MissingCategories(ctx context.Context, ids []int64) ([]int64, error)

	UpsertProduct(ctx context.Context, id int64, name string) error
	UpsertCategory(ctx context.Context, id int64, name string) error
}

// =============================================================================
// COMBINATION RULES
// =============================================================================

// RuleStore persists combination rules.
type RuleStore interface {
	InsertRule(ctx context.Context, r CombinationRule) (CombinationRule, error)
	UpdateRule(ctx context.Context, r CombinationRule) error
	GetRule(ctx context.Context, id RuleID) (CombinationRule, error)
	ListRules(ctx context.Context) ([]CombinationRule, error)

	// FindRuleByPair matches the unordered pair (a, b) against both stored
	// orderings. ok is false when no rule covers the pair.
	FindRuleByPair(ctx context.Context, a, b DiscountID) (rule CombinationRule, ok bool, err error)
}

// =============================================================================
// OWNERSHIP
// =============================================================================

// OwnershipStore persists the grant lifecycle tables.
type OwnershipStore interface {
	InsertOwned(ctx context.Context, accountID AccountID, discountID DiscountID, grantedAt time.Time) (OwnedDiscount, error)

	// GetOwned returns the grant only when it belongs to the account.
	GetOwned(ctx context.Context, id GrantID, accountID AccountID) (OwnedDiscount, error)

	// FindOwnedByDiscount returns the account's oldest grant of the
	// discount, skipping the grant with id excluding (0 skips nothing).
	// The exclusion lets a combination of two equal discounts locate two
	// distinct grants.
	FindOwnedByDiscount(ctx context.Context, accountID AccountID, discountID DiscountID, excluding GrantID) (OwnedDiscount, error)

	DeleteOwned(ctx context.Context, id GrantID) error

	InsertActivated(ctx context.Context, accountID AccountID, discountID DiscountID, activatedAt time.Time) (ActivatedDiscount, error)

	// InsertHistory archives a removed grant. Append-only.
	InsertHistory(ctx context.Context, h HistoricalDiscount) error

	ListOwned(ctx context.Context, accountID AccountID) ([]OwnedDiscount, error)
	ListActivated(ctx context.Context, accountID AccountID) ([]ActivatedDiscount, error)

	// Admin views across all accounts.
	ListAllOwned(ctx context.Context) ([]OwnedDiscount, error)
	ListAllActivated(ctx context.Context) ([]ActivatedDiscount, error)
	ListAllHistory(ctx context.Context) ([]HistoricalDiscount, error)
}

// =============================================================================
// ORDERS & CONFIG (settlement inputs)
// =============================================================================

// OrderStore persists the transient order queue.
type OrderStore interface {
	InsertOrder(ctx context.Context, o Order) error
	ListOrders(ctx context.Context) ([]Order, error)

	// MaxOrderDate returns the latest order timestamp; ok is false when
	// the queue is empty.
	MaxOrderDate(ctx context.Context) (t time.Time, ok bool, err error)

	DeleteAllOrders(ctx context.Context) error
}

// ConfigStore reads and writes the generic named settings rows.
type ConfigStore interface {
	ConfigDate(ctx context.Context, name string) (t time.Time, ok bool, err error)
	SetConfigDate(ctx context.Context, name string, t time.Time) error
	ConfigFloat(ctx context.Context, name string) (v float64, ok bool, err error)
	SetConfigFloat(ctx context.Context, name string, v float64) error
}

// AccountStore persists the identity projection written by the user sync.
type AccountStore interface {
	UpsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Store aggregates every persistence concern the engine touches.
type Store interface {
	WalletStore
	CatalogStore
	RuleStore
	OwnershipStore
	OrderStore
	ConfigStore
	AccountStore
}

// TxStore adds transactional execution. If fn returns an error the
// transaction is rolled back; otherwise it is committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

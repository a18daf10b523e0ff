/*
Package loyalty provides the core discount and Exp balance engine.

PURPOSE:
  This package contains the domain types and operations for the loyalty
  platform: per-account Exp wallets with an append-only change log, the
  discount catalog, pairwise combination rules, and the ownership
  lifecycle of discount grants.

KEY CONCEPTS IN THIS FILE (types.go):
  - Wallet / BalanceChange: the Exp balance and its audit trail
  - Discount: a named reward, primary (purchasable) or derived (combined)
  - CombinationRule: unordered discount pair -> resulting discount
  - OwnedDiscount / ActivatedDiscount / HistoricalDiscount: grant lifecycle
  - Order: transient purchase record consumed by settlement

DESIGN PRINCIPLES:
  1. Auditability: every balance mutation produces one immutable
     BalanceChange carrying the resulting balance.
  2. Single entry point: wallets are mutated only through signed deltas,
     never set directly.
  3. Lifecycle: a grant lives in exactly one of {owned, activated} and
     leaves one historical row per transition.

SEE ALSO:
  - wallet.go: balance mutation and the change log
  - engine.go: purchase / combine / activate orchestration
  - store.go: persistence interfaces
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID identifies an account provisioned by the identity layer.
// The engine trusts it; it never validates credentials.
type AccountID int64

// DiscountID identifies a catalog discount.
type DiscountID int64

// GrantID identifies a single ownership grant (an OwnedDiscount row).
// The id is preserved when the grant is archived to history.
type GrantID int64

// RuleID identifies a combination rule.
type RuleID int64

// =============================================================================
// WALLET & LEDGER
// =============================================================================

// Wallet holds an account's Exp balance. One wallet per account,
// created with balance 0 on provisioning.
type Wallet struct {
	ID        int64
	AccountID AccountID
	Balance   int
}

// BalanceChange is an immutable ledger entry. CurrentBalance is the
// wallet balance immediately after Delta was applied; it is written in
// the same storage transaction as the wallet update and must never
// drift from the wallet's actual value.
type BalanceChange struct {
	ID             string // uuid
	AccountID      AccountID
	WalletID       int64
	Delta          int
	CurrentBalance int
	Reason         string
	CreatedAt      time.Time
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// Discount is a named reward. Primary discounts are directly purchasable
// with Exp; non-primary discounts are only obtainable via combination.
type Discount struct {
	ID          DiscountID
	Name        string
	Description string
	Active      bool
	Percent     int // discount size in percent
	Cost        int // purchase cost in Exp
	Primary     bool
	StartAt     time.Time
	EndAt       *time.Time // nil means no expiry

	// Optional scoping. Opaque foreign keys into the catalog collaborators;
	// the engine only checks existence.
	ProductIDs  []int64
	CategoryIDs []int64
}

// Expired reports whether the discount's validity window has ended as of now.
func (d Discount) Expired(now time.Time) bool {
	return d.EndAt != nil && d.EndAt.Before(now)
}

// CombinationRule maps an unordered pair {FirstID, SecondID} of active
// discounts to a resulting non-primary discount. Lookups are symmetric;
// storage order of the pair carries no meaning.
type CombinationRule struct {
	ID       RuleID
	ResultID DiscountID
	FirstID  DiscountID
	SecondID DiscountID
}

// Matches reports whether the rule covers the unordered pair (a, b).
func (r CombinationRule) Matches(a, b DiscountID) bool {
	return (r.FirstID == a && r.SecondID == b) || (r.FirstID == b && r.SecondID == a)
}

// RuleView is a rule denormalized with the names of the three referenced
// discounts, for display.
type RuleView struct {
	CombinationRule
	ResultName string
	FirstName  string
	SecondName string
}

// =============================================================================
// OWNERSHIP LIFECYCLE
// =============================================================================

// OwnedDiscount is an un-activated grant. An account may hold several
// independent grants of the same discount at once.
type OwnedDiscount struct {
	ID         GrantID
	AccountID  AccountID
	DiscountID DiscountID
	GrantedAt  time.Time
}

// ActivatedDiscount is a grant converted for use at checkout. Terminal:
// no further transition is modeled.
type ActivatedDiscount struct {
	ID          int64
	AccountID   AccountID
	DiscountID  DiscountID
	ActivatedAt time.Time
}

// HistoricalDiscount archives a removed owned grant, preserving the
// original grant id and timestamp plus the removal timestamp. Written
// exactly once per Owned -> {Activated, consumed-by-combination} edge.
type HistoricalDiscount struct {
	GrantID    GrantID
	AccountID  AccountID
	DiscountID DiscountID
	GrantedAt  time.Time
	RemovedAt  time.Time
}

// GrantView is an ownership record enriched with catalog fields for
// user-facing listings.
type GrantView struct {
	ID         int64 // grant id for owned rows, activation id for activated rows
	DiscountID DiscountID
	Name       string
	Description string
	Active      bool
	Percent     int
	Cost        int
	Primary     bool
	StartAt     time.Time
	EndAt       *time.Time
	Since       time.Time // granted-at or activated-at
	Activated   bool
}

// =============================================================================
// SETTLEMENT INPUTS
// =============================================================================

// Order is an externally sourced purchase record. It is a queue, not a
// ledger: it lives only until settlement converts it into a
// BalanceChange, after which it is deleted.
type Order struct {
	ID        int64
	AccountID AccountID
	Amount    decimal.Decimal
	PlacedAt  time.Time
}

// Account is the minimal identity projection the engine consumes from
// the user sync: enough for wallet provisioning and the admin check.
type Account struct {
	ID      AccountID
	Name    string
	Email   string
	Admin   bool
	Blocked bool
}

// Config row names used by the settlement job. The store keeps these in
// a single generic key-value row shape (name + typed value columns),
// mirroring the external store's convention.
const (
	ConfigLastOrderDate = "LastDateOrder"
	ConfigExpRate       = "rublesToExp"
)

// DefaultOrderCursor is the cursor used when LastDateOrder is unset:
// a fixed epoch far enough in the past to capture the full order history.
var DefaultOrderCursor = time.Date(2000, time.April, 7, 0, 0, 0, 0, time.UTC)

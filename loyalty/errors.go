/*
errors.go - Centralized error taxonomy for the loyalty engine

PURPOSE:
  All engine error kinds in one place. Handlers map these to a stable
  reason token in the HTTP response so the frontend can render specific
  messages ("insufficient balance" vs "not found").

ERROR CATEGORIES:
  1. Lookup errors    - referenced entity absent
  2. Precondition     - discount state or balance check failed
  3. Reference errors - catalog scoping or rule references invalid

USAGE:
  Match with errors.Is; richer context via errors.As on the structured
  types below:

    if errors.Is(err, loyalty.ErrInsufficientBalance) { ... }
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate creation (wallet for an
	// account, combination rule for an unordered pair).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotActive is returned when an operation requires an active discount.
	ErrNotActive = errors.New("discount is not active")

	// ErrNotPrimary is returned when purchasing a non-primary discount.
	ErrNotPrimary = errors.New("discount is not primary")

	// ErrInsufficientBalance is returned when a cost exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoSuchCombination is returned when no rule covers the requested pair.
	ErrNoSuchCombination = errors.New("no combination rule for pair")

	// ErrInvalidReference is returned when a discount's scoping lists name
	// products or categories that do not exist.
	ErrInvalidReference = errors.New("invalid product or category reference")

	// ErrInvalidRule is returned when a combination rule's discount
	// references fail validation (missing, inactive, or primary result).
	ErrInvalidRule = errors.New("invalid combination rule")

	// ErrNoOp is returned when SetActive is asked for the state the
	// discount is already in.
	ErrNoOp = errors.New("no change")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports how short the wallet is.
type InsufficientBalanceError struct {
	AccountID AccountID
	Balance   int
	Cost      int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d exp, need %d", e.Balance, e.Cost)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidReferenceError names the scoping references that failed validation.
type InvalidReferenceError struct {
	Kind    string // "product" or "category"
	Missing []int64
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("unknown %s references: %v", e.Kind, e.Missing)
}

func (e *InvalidReferenceError) Unwrap() error { return ErrInvalidReference }

// RuleValidationError explains which leg of a combination rule failed.
type RuleValidationError struct {
	DiscountID DiscountID
	Position   string // "result", "first", "second"
	Cause      error  // ErrNotFound, ErrNotActive or ErrNotPrimary
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %s discount %d: %v", e.Position, e.DiscountID, e.Cause)
}

func (e *RuleValidationError) Unwrap() error { return ErrInvalidRule }

// =============================================================================
// TAXONOMY HELPERS
// =============================================================================

// IsClientError reports whether the error is a rejected precondition
// rather than a storage failure. Handlers map these to 400; anything
// else is logged and surfaced as a generic 500.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrNotPrimary) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNoSuchCombination) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrNoOp)
}

// Reason returns the stable token used in HTTP error payloads.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNoSuchCombination):
		return "no_such_combination"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrNotPrimary):
		return "not_primary"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNoOp):
		return "noop"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

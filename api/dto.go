/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: User-facing handlers
  - admin.go: Admin handlers
*/
package api

import (
	"time"

	"github.com/prism/loyalty-engine/loyalty"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error body. Reason is a stable token
// clients can branch on; Error is human-readable.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// DiscountDTO represents a catalog discount in API responses.
type DiscountDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	Percent     int     `json:"percent"`
	Cost        int     `json:"cost"`
	Primary     bool    `json:"primary"`
	StartAt     string  `json:"start_at"`
	EndAt       *string `json:"end_at,omitempty"`
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

// DiscountRequest is the body for creating or updating a discount.
type DiscountRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	Percent     int     `json:"percent"`
	Cost        int     `json:"cost"`
	Primary     bool    `json:"primary"`
	StartAt     string  `json:"start_at"`
	EndAt       *string `json:"end_at"`
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

// SwitchActivityRequest toggles a discount's active flag.
type SwitchActivityRequest struct {
	Active bool `json:"active"`
}

// =============================================================================
// COMBINATION RULES
// =============================================================================

// RuleDTO represents an exchange rule with the referenced discount
// names resolved for display.
type RuleDTO struct {
	ID         int64  `json:"id"`
	ResultID   int64  `json:"result_id"`
	ResultName string `json:"result_name"`
	FirstID    int64  `json:"first_id"`
	FirstName  string `json:"first_name"`
	SecondID   int64  `json:"second_id"`
	SecondName string `json:"second_name"`
}

// RuleRequest is the body for creating or updating an exchange rule.
type RuleRequest struct {
	ResultID int64 `json:"result_id"`
	FirstID  int64 `json:"first_id"`
	SecondID int64 `json:"second_id"`
}

// CheckExchangeResponse reports whether a pair of discounts combines.
type CheckExchangeResponse struct {
	HasDiscount bool         `json:"has_discount"`
	Discount    *DiscountDTO `json:"discount,omitempty"`
}

// =============================================================================
// OWNERSHIP
// =============================================================================

// OwnedDTO represents an un-activated grant.
type OwnedDTO struct {
	ID         int64  `json:"id"`
	AccountID  int64  `json:"account_id"`
	DiscountID int64  `json:"discount_id"`
	GrantedAt  string `json:"granted_at"`
}

// ActivatedDTO represents an activated grant.
type ActivatedDTO struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	DiscountID  int64  `json:"discount_id"`
	ActivatedAt string `json:"activated_at"`
}

// HistoryDTO represents an archived grant.
type HistoryDTO struct {
	GrantID    int64  `json:"grant_id"`
	AccountID  int64  `json:"account_id"`
	DiscountID int64  `json:"discount_id"`
	GrantedAt  string `json:"granted_at"`
	RemovedAt  string `json:"removed_at"`
}

// GrantViewDTO is an ownership record enriched with catalog fields.
type GrantViewDTO struct {
	ID          int64   `json:"id"`
	DiscountID  int64   `json:"discount_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Percent     int     `json:"percent"`
	Cost        int     `json:"cost"`
	Primary     bool    `json:"primary"`
	StartAt     string  `json:"start_at"`
	EndAt       *string `json:"end_at,omitempty"`
	Since       string  `json:"since"`
	Activated   bool    `json:"activated"`
}

// UserDiscountsResponse is the caller's full ownership picture.
type UserDiscountsResponse struct {
	Owned     []GrantViewDTO `json:"owned"`
	Activated []GrantViewDTO `json:"activated"`
}

// BuyPrimaryRequest purchases a primary discount for the caller.
type BuyPrimaryRequest struct {
	DiscountID int64 `json:"discountId"`
}

// CombineRequest exchanges two owned discounts for the combination
// result.
type CombineRequest struct {
	DiscountOneID int64 `json:"discountOneId"`
	DiscountTwoID int64 `json:"discountTwoId"`
}

// ActivateRequest activates an owned grant by its grant id.
type ActivateRequest struct {
	ID int64 `json:"id"`
}

// =============================================================================
// WALLET & PROFILE
// =============================================================================

// BalanceChangeDTO represents one ledger entry.
type BalanceChangeDTO struct {
	ID             string `json:"id"`
	AccountID      int64  `json:"account_id"`
	Delta          int    `json:"delta"`
	CurrentBalance int    `json:"current_balance"`
	Reason         string `json:"reason"`
	CreatedAt      string `json:"created_at"`
}

// ProfileDTO is the caller's account plus wallet balance.
type ProfileDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Admin   bool   `json:"admin"`
	Balance int    `json:"balance"`
}

// ExpCountDTO carries just the balance.
type ExpCountDTO struct {
	Balance int `json:"balance"`
}

// ChargeExpRequest manually credits or debits an account's wallet.
type ChargeExpRequest struct {
	AccountID int64  `json:"account_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

// ChargeDiscountRequest manually grants a discount to an account.
type ChargeDiscountRequest struct {
	AccountID  int64 `json:"account_id"`
	DiscountID int64 `json:"discount_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDiscountDTO(d loyalty.Discount) DiscountDTO {
	dto := DiscountDTO{
		ID:          int64(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active,
		Percent:     d.Percent,
		Cost:        d.Cost,
		Primary:     d.Primary,
		StartAt:     d.StartAt.Format(time.RFC3339),
		ProductIDs:  emptyIfNil(d.ProductIDs),
		CategoryIDs: emptyIfNil(d.CategoryIDs),
	}
	if d.EndAt != nil {
		s := d.EndAt.Format(time.RFC3339)
		dto.EndAt = &s
	}
	return dto
}

func toDiscountDTOs(discounts []loyalty.Discount) []DiscountDTO {
	dtos := make([]DiscountDTO, len(discounts))
	for i, d := range discounts {
		dtos[i] = toDiscountDTO(d)
	}
	return dtos
}

func (r DiscountRequest) toDomain(id loyalty.DiscountID) (loyalty.Discount, error) {
	startAt, err := time.Parse(time.RFC3339, r.StartAt)
	if err != nil {
		return loyalty.Discount{}, err
	}
	d := loyalty.Discount{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Active:      r.Active,
		Percent:     r.Percent,
		Cost:        r.Cost,
		Primary:     r.Primary,
		StartAt:     startAt,
		ProductIDs:  r.ProductIDs,
		CategoryIDs: r.CategoryIDs,
	}
	if r.EndAt != nil {
		endAt, err := time.Parse(time.RFC3339, *r.EndAt)
		if err != nil {
			return loyalty.Discount{}, err
		}
		d.EndAt = &endAt
	}
	return d, nil
}

func toRuleDTO(v loyalty.RuleView) RuleDTO {
	return RuleDTO{
		ID:         int64(v.ID),
		ResultID:   int64(v.ResultID),
		ResultName: v.ResultName,
		FirstID:    int64(v.FirstID),
		FirstName:  v.FirstName,
		SecondID:   int64(v.SecondID),
		SecondName: v.SecondName,
	}
}

func toOwnedDTO(o loyalty.OwnedDiscount) OwnedDTO {
	return OwnedDTO{
		ID:         int64(o.ID),
		AccountID:  int64(o.AccountID),
		DiscountID: int64(o.DiscountID),
		GrantedAt:  o.GrantedAt.Format(time.RFC3339),
	}
}

func toActivatedDTO(a loyalty.ActivatedDiscount) ActivatedDTO {
	return ActivatedDTO{
		ID:          a.ID,
		AccountID:   int64(a.AccountID),
		DiscountID:  int64(a.DiscountID),
		ActivatedAt: a.ActivatedAt.Format(time.RFC3339),
	}
}

func toHistoryDTO(h loyalty.HistoricalDiscount) HistoryDTO {
	return HistoryDTO{
		GrantID:    int64(h.GrantID),
		AccountID:  int64(h.AccountID),
		DiscountID: int64(h.DiscountID),
		GrantedAt:  h.GrantedAt.Format(time.RFC3339),
		RemovedAt:  h.RemovedAt.Format(time.RFC3339),
	}
}

func toGrantViewDTO(v loyalty.GrantView) GrantViewDTO {
	dto := GrantViewDTO{
		ID:          v.ID,
		DiscountID:  int64(v.DiscountID),
		Name:        v.Name,
		Description: v.Description,
		Percent:     v.Percent,
		Cost:        v.Cost,
		Primary:     v.Primary,
		StartAt:     v.StartAt.Format(time.RFC3339),
		Since:       v.Since.Format(time.RFC3339),
		Activated:   v.Activated,
	}
	if v.EndAt != nil {
		s := v.EndAt.Format(time.RFC3339)
		dto.EndAt = &s
	}
	return dto
}

func toGrantViewDTOs(views []loyalty.GrantView) []GrantViewDTO {
	dtos := make([]GrantViewDTO, len(views))
	for i, v := range views {
		dtos[i] = toGrantViewDTO(v)
	}
	return dtos
}

func toBalanceChangeDTO(c loyalty.BalanceChange) BalanceChangeDTO {
	return BalanceChangeDTO{
		ID:             c.ID,
		AccountID:      int64(c.AccountID),
		Delta:          c.Delta,
		CurrentBalance: c.CurrentBalance,
		Reason:         c.Reason,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

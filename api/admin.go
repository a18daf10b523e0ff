/*
admin.go - Admin HTTP handlers

PURPOSE:
  Catalog and exchange-rule CRUD, manual wallet/discount charges, the
  cross-account listings, and the manual settlement trigger. The whole
  subtree sits behind RequireAdmin (auth.go); handlers here assume the
  caller is already verified.

ENDPOINTS (all under /api/admin):
  Catalog:
    POST   /discounts/createDiscount
    PUT    /discounts/updateDiscount/{id}
    DELETE /discounts/deleteDiscount/{id}
    GET    /discounts/getDiscount/{id}
    GET    /discounts/getAllDiscounts
    GET    /discounts/getDiscountsNoPrimary
    POST   /discounts/SwitchActivityDiscount/{id}

  Exchange rules:
    POST   /exchanges/createDiscountExchange
    PUT    /exchanges/updateDiscountExchange/{id}
    GET    /exchanges/getExchangeDiscounts
    GET    /exchanges/getExchangeDiscount/{id}

  Manual charges:
    POST   /chargeExp
    POST   /chargeDiscount

  Listings:
    GET    /ledger/GetExpChanges
    GET    /grants/GetUsersDiscounts
    GET    /grants/getUserDiscountsActivated
    GET    /grants/getUserDiscountsHistory

  Settlement:
    POST   /settlement/run

CACHE INVALIDATION:
  Every write that can change the storefront listing (create, update,
  delete, activity switch) drops the cached primary-discount response.

SEE ALSO:
  - handlers.go: shared helpers and Handler struct
  - auth.go: RequireAdmin
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/prism/loyalty-engine/loyalty"
)

// =============================================================================
// CATALOG CRUD
// =============================================================================

// CreateDiscount adds a discount to the catalog.
// POST /api/admin/discounts/createDiscount
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	d, err := req.toDomain(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp", "")
		return
	}

	created, err := h.Catalog.Create(r.Context(), d)
	if err != nil {
		h.writeDomainError(w, err, "failed to create discount")
		return
	}

	h.invalidatePrimaryCache(r)
	writeJSON(w, http.StatusCreated, toDiscountDTO(created))
}

// UpdateDiscount replaces a discount's fields in place.
// PUT /api/admin/discounts/updateDiscount/{id}
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}
	var req DiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	d, err := req.toDomain(loyalty.DiscountID(id))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp", "")
		return
	}

	updated, err := h.Catalog.Update(r.Context(), d)
	if err != nil {
		h.writeDomainError(w, err, "failed to update discount")
		return
	}

	h.invalidatePrimaryCache(r)
	writeJSON(w, http.StatusOK, toDiscountDTO(updated))
}

// DeleteDiscount removes a discount and returns the removed
// definition.
// DELETE /api/admin/discounts/deleteDiscount/{id}
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}

	removed, err := h.Catalog.Delete(r.Context(), loyalty.DiscountID(id))
	if err != nil {
		h.writeDomainError(w, err, "failed to delete discount")
		return
	}

	h.invalidatePrimaryCache(r)
	writeJSON(w, http.StatusOK, toDiscountDTO(removed))
}

// GetDiscount returns one discount with its scoping lists.
// GET /api/admin/discounts/getDiscount/{id}
func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}

	d, err := h.Catalog.Get(r.Context(), loyalty.DiscountID(id))
	if err != nil {
		h.writeDomainError(w, err, "failed to get discount")
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTO(d))
}

// GetAllDiscounts returns the full catalog.
// GET /api/admin/discounts/getAllDiscounts
func (h *Handler) GetAllDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.Catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list discounts")
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTOs(discounts))
}

// GetDiscountsNoPrimary returns the non-primary discounts, the
// candidates for exchange-rule results.
// GET /api/admin/discounts/getDiscountsNoPrimary
func (h *Handler) GetDiscountsNoPrimary(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.Catalog.ListNonPrimary(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list discounts")
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTOs(discounts))
}

// SwitchActivityDiscount toggles the active flag.
// POST /api/admin/discounts/SwitchActivityDiscount/{id}
func (h *Handler) SwitchActivityDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}
	var req SwitchActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	d, err := h.Catalog.SetActive(r.Context(), loyalty.DiscountID(id), req.Active)
	if err != nil {
		h.writeDomainError(w, err, "failed to switch discount activity")
		return
	}

	h.invalidatePrimaryCache(r)
	writeJSON(w, http.StatusOK, toDiscountDTO(d))
}

// =============================================================================
// EXCHANGE RULE CRUD
// =============================================================================

// CreateDiscountExchange registers a combination rule.
// POST /api/admin/exchanges/createDiscountExchange
func (h *Handler) CreateDiscountExchange(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	rule, err := h.Registry.Create(r.Context(), loyalty.CombinationRule{
		ResultID: loyalty.DiscountID(req.ResultID),
		FirstID:  loyalty.DiscountID(req.FirstID),
		SecondID: loyalty.DiscountID(req.SecondID),
	})
	if err != nil {
		h.writeDomainError(w, err, "failed to create exchange rule")
		return
	}

	view, err := h.Registry.Get(r.Context(), rule.ID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load exchange rule")
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(view))
}

// UpdateDiscountExchange rewrites a combination rule.
// PUT /api/admin/exchanges/updateDiscountExchange/{id}
func (h *Handler) UpdateDiscountExchange(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id", "")
		return
	}
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	rule, err := h.Registry.Update(r.Context(), loyalty.CombinationRule{
		ID:       loyalty.RuleID(id),
		ResultID: loyalty.DiscountID(req.ResultID),
		FirstID:  loyalty.DiscountID(req.FirstID),
		SecondID: loyalty.DiscountID(req.SecondID),
	})
	if err != nil {
		h.writeDomainError(w, err, "failed to update exchange rule")
		return
	}

	view, err := h.Registry.Get(r.Context(), rule.ID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load exchange rule")
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(view))
}

// GetExchangeDiscounts lists every combination rule with names.
// GET /api/admin/exchanges/getExchangeDiscounts
func (h *Handler) GetExchangeDiscounts(w http.ResponseWriter, r *http.Request) {
	views, err := h.Registry.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list exchange rules")
		return
	}

	dtos := make([]RuleDTO, len(views))
	for i, v := range views {
		dtos[i] = toRuleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExchangeDiscount returns one combination rule with names.
// GET /api/admin/exchanges/getExchangeDiscount/{id}
func (h *Handler) GetExchangeDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id", "")
		return
	}

	view, err := h.Registry.Get(r.Context(), loyalty.RuleID(id))
	if err != nil {
		h.writeDomainError(w, err, "failed to get exchange rule")
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(view))
}

// =============================================================================
// MANUAL CHARGES
// =============================================================================

// ChargeExp manually credits or debits an account's wallet.
// POST /api/admin/chargeExp
func (h *Handler) ChargeExp(w http.ResponseWriter, r *http.Request) {
	var req ChargeExpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual adjustment"
	}

	balance, err := h.Ledger.ApplyDelta(r.Context(), loyalty.AccountID(req.AccountID), req.Delta, reason)
	if err != nil {
		h.writeDomainError(w, err, "failed to charge exp")
		return
	}
	writeJSON(w, http.StatusOK, ExpCountDTO{Balance: balance})
}

// ChargeDiscount manually grants a discount to an account, no cost.
// POST /api/admin/chargeDiscount
func (h *Handler) ChargeDiscount(w http.ResponseWriter, r *http.Request) {
	var req ChargeDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	// The discount must exist; grants of unknown ids would leak into
	// listings as blanks.
	if _, err := h.Catalog.Get(r.Context(), loyalty.DiscountID(req.DiscountID)); err != nil {
		h.writeDomainError(w, err, "failed to grant discount")
		return
	}

	owned, err := h.Tracker.Grant(r.Context(), loyalty.AccountID(req.AccountID), loyalty.DiscountID(req.DiscountID))
	if err != nil {
		h.writeDomainError(w, err, "failed to grant discount")
		return
	}
	writeJSON(w, http.StatusCreated, toOwnedDTO(owned))
}

// =============================================================================
// LISTINGS
// =============================================================================

// GetExpChanges returns every ledger entry, newest first.
// GET /api/admin/ledger/GetExpChanges
func (h *Handler) GetExpChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := h.Store.AllChanges(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list ledger entries")
		return
	}

	dtos := make([]BalanceChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = toBalanceChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUsersDiscounts returns every un-activated grant.
// GET /api/admin/grants/GetUsersDiscounts
func (h *Handler) GetUsersDiscounts(w http.ResponseWriter, r *http.Request) {
	grants, err := h.Store.ListAllOwned(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list grants")
		return
	}

	dtos := make([]OwnedDTO, len(grants))
	for i, g := range grants {
		dtos[i] = toOwnedDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserDiscountsActivated returns every activated grant.
// GET /api/admin/grants/getUserDiscountsActivated
func (h *Handler) GetUserDiscountsActivated(w http.ResponseWriter, r *http.Request) {
	activated, err := h.Store.ListAllActivated(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list activations")
		return
	}

	dtos := make([]ActivatedDTO, len(activated))
	for i, a := range activated {
		dtos[i] = toActivatedDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserDiscountsHistory returns the archived grants.
// GET /api/admin/grants/getUserDiscountsHistory
func (h *Handler) GetUserDiscountsHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Tracker.History(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "failed to list history")
		return
	}

	dtos := make([]HistoryDTO, len(history))
	for i, hh := range history {
		dtos[i] = toHistoryDTO(hh)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// RunSettlement triggers one settlement pass outside the schedule.
// POST /api/admin/settlement/run
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	if err := h.Job.Run(r.Context()); err != nil {
		h.Log.Errorw("manual settlement run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "settlement run failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

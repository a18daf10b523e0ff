/*
handlers.go - HTTP handlers for the user-facing loyalty API

PURPOSE:
  Exposes the loyalty engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS (caller identity comes from the context, see auth.go):
  Discounts:
    POST /api/discounts/buyPrimaryDiscount          Purchase a primary discount
    POST /api/discounts/CombiningDiscounts          Exchange two owned discounts
    POST /api/discounts/ActivatedDiscount           Activate an owned grant
    GET  /api/discounts/checkExchange/{id1}/{id2}   Does this pair combine?
    GET  /api/discounts/getPrimaryDiscount          Purchasable primary discounts
    GET  /api/discounts/getAllDiscountsUser         Caller's owned + activated

  Profile:
    GET  /api/profile                               Account + balance
    GET  /api/profile/expHistory                    Ledger entries
    GET  /api/profile/getExpCount                   Balance only
    POST /api/exp/createUserExpWallet               Provision a wallet

ERROR HANDLING:
  Domain errors from the client taxonomy map to 400 with a stable
  reason token; everything else is a logged 500. See writeDomainError.

CACHING:
  getPrimaryDiscount is the storefront hot path; its rendered response
  is cached and invalidated by every admin catalog write (admin.go).

SEE ALSO:
  - admin.go: Admin handlers
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prism/loyalty-engine/cache"
	"github.com/prism/loyalty-engine/loyalty"
	"github.com/prism/loyalty-engine/settlement"
)

// primaryDiscountsKey caches the rendered getPrimaryDiscount response.
const primaryDiscountsKey = "discounts:primary"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    loyalty.TxStore
	Ledger   *loyalty.Ledger
	Catalog  *loyalty.Catalog
	Registry *loyalty.Registry
	Tracker  *loyalty.Tracker
	Engine   *loyalty.Engine
	Job      *settlement.Job

	Cache    cache.Cache
	CacheTTL time.Duration

	Log *zap.SugaredLogger
}

// NewHandler wires the domain services around one store.
func NewHandler(store loyalty.TxStore, job *settlement.Job, c cache.Cache, cacheTTL time.Duration, log *zap.SugaredLogger) *Handler {
	return &Handler{
		Store:    store,
		Ledger:   loyalty.NewLedger(store),
		Catalog:  loyalty.NewCatalog(store),
		Registry: loyalty.NewRegistry(store),
		Tracker:  loyalty.NewTracker(store),
		Engine:   loyalty.NewEngine(store, log),
		Job:      job,
		Cache:    c,
		CacheTTL: cacheTTL,
		Log:      log,
	}
}

// =============================================================================
// DISCOUNT HANDLERS
// =============================================================================

// BuyPrimaryDiscount purchases a primary discount for the caller.
// POST /api/discounts/buyPrimaryDiscount
func (h *Handler) BuyPrimaryDiscount(w http.ResponseWriter, r *http.Request) {
	var req BuyPrimaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	account := accountFrom(r.Context())
	owned, err := h.Engine.PurchasePrimaryDiscount(r.Context(), account.ID, loyalty.DiscountID(req.DiscountID))
	if err != nil {
		h.writeDomainError(w, err, "failed to purchase discount")
		return
	}

	writeJSON(w, http.StatusCreated, toOwnedDTO(owned))
}

// CombineDiscounts exchanges two owned discounts for the combination
// result.
// POST /api/discounts/CombiningDiscounts
func (h *Handler) CombineDiscounts(w http.ResponseWriter, r *http.Request) {
	var req CombineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	account := accountFrom(r.Context())
	owned, err := h.Engine.CombineDiscounts(r.Context(), account.ID,
		loyalty.DiscountID(req.DiscountOneID), loyalty.DiscountID(req.DiscountTwoID))
	if err != nil {
		h.writeDomainError(w, err, "failed to combine discounts")
		return
	}

	writeJSON(w, http.StatusCreated, toOwnedDTO(owned))
}

// ActivateDiscount converts an owned grant into an activated one.
// POST /api/discounts/ActivatedDiscount
func (h *Handler) ActivateDiscount(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	account := accountFrom(r.Context())
	activated, err := h.Engine.ActivateDiscount(r.Context(), account.ID, loyalty.GrantID(req.ID))
	if err != nil {
		h.writeDomainError(w, err, "failed to activate discount")
		return
	}

	writeJSON(w, http.StatusOK, toActivatedDTO(activated))
}

// CheckExchange reports whether two discounts combine, and into what.
// Locate-only: nothing is consumed.
// GET /api/discounts/checkExchange/{discountId1}/{discountId2}
func (h *Handler) CheckExchange(w http.ResponseWriter, r *http.Request) {
	first, err := urlID(r, "discountId1")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}
	second, err := urlID(r, "discountId2")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount id", "")
		return
	}

	rule, ok, err := h.Registry.FindByPair(r.Context(), loyalty.DiscountID(first), loyalty.DiscountID(second))
	if err != nil {
		h.writeDomainError(w, err, "failed to check exchange")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, CheckExchangeResponse{HasDiscount: false})
		return
	}

	result, err := h.Catalog.Get(r.Context(), rule.ResultID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load exchange result")
		return
	}

	dto := toDiscountDTO(result)
	writeJSON(w, http.StatusOK, CheckExchangeResponse{HasDiscount: true, Discount: &dto})
}

// GetPrimaryDiscounts lists the purchasable primary discounts.
// GET /api/discounts/getPrimaryDiscount
func (h *Handler) GetPrimaryDiscounts(w http.ResponseWriter, r *http.Request) {
	var cached []DiscountDTO
	if err := cache.GetJSON(r.Context(), h.Cache, primaryDiscountsKey, &cached); err == nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	discounts, err := h.Catalog.ListPrimary(r.Context(), time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err, "failed to list primary discounts")
		return
	}

	dtos := toDiscountDTOs(discounts)
	if err := cache.SetJSON(r.Context(), h.Cache, primaryDiscountsKey, dtos, h.CacheTTL); err != nil {
		h.Log.Warnw("failed to cache primary discounts", "error", err)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAllDiscountsUser returns the caller's owned and activated
// discounts, enriched with catalog fields.
// GET /api/discounts/getAllDiscountsUser
func (h *Handler) GetAllDiscountsUser(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	owned, activated, err := h.Tracker.ListForAccount(r.Context(), account.ID)
	if err != nil {
		h.writeDomainError(w, err, "failed to list discounts")
		return
	}

	writeJSON(w, http.StatusOK, UserDiscountsResponse{
		Owned:     toGrantViewDTOs(owned),
		Activated: toGrantViewDTOs(activated),
	})
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// GetProfile returns the caller's account and wallet balance.
// GET /api/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	balance, err := h.Ledger.GetBalance(r.Context(), account.ID)
	if err != nil && !errors.Is(err, loyalty.ErrNotFound) {
		h.writeDomainError(w, err, "failed to load balance")
		return
	}

	writeJSON(w, http.StatusOK, ProfileDTO{
		ID:      int64(account.ID),
		Name:    account.Name,
		Email:   account.Email,
		Admin:   account.Admin,
		Balance: balance,
	})
}

// GetExpHistory returns the caller's ledger entries, newest first.
// GET /api/profile/expHistory
func (h *Handler) GetExpHistory(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	changes, err := h.Ledger.Changes(r.Context(), account.ID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load history")
		return
	}

	dtos := make([]BalanceChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = toBalanceChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExpCount returns the caller's balance.
// GET /api/profile/getExpCount
func (h *Handler) GetExpCount(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	balance, err := h.Ledger.GetBalance(r.Context(), account.ID)
	if err != nil {
		h.writeDomainError(w, err, "failed to load balance")
		return
	}
	writeJSON(w, http.StatusOK, ExpCountDTO{Balance: balance})
}

// CreateExpWallet provisions a zero-balance wallet for the caller.
// POST /api/exp/createUserExpWallet
func (h *Handler) CreateExpWallet(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())
	wallet, err := h.Ledger.CreateWallet(r.Context(), account.ID)
	if errors.Is(err, loyalty.ErrAlreadyExists) {
		writeError(w, http.StatusConflict, "wallet already exists", loyalty.Reason(err))
		return
	}
	if err != nil {
		h.writeDomainError(w, err, "failed to create wallet")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": int64(wallet.AccountID),
		"balance":    wallet.Balance,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps domain errors onto the API error contract:
// the client taxonomy becomes 400 with a reason token, anything else
// is a logged 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, message string) {
	if loyalty.IsClientError(err) {
		writeError(w, http.StatusBadRequest, err.Error(), loyalty.Reason(err))
		return
	}
	h.Log.Errorw(message, "error", err)
	writeError(w, http.StatusInternalServerError, message, "")
}

// invalidatePrimaryCache drops the cached storefront listing. Called
// by every admin catalog write.
func (h *Handler) invalidatePrimaryCache(r *http.Request) {
	if err := h.Cache.Delete(r.Context(), primaryDiscountsKey); err != nil {
		h.Log.Warnw("failed to invalidate discount cache", "error", err)
	}
}

func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, reason string) {
	writeJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}

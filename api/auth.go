/*
auth.go - Identity middleware

PURPOSE:
  The platform gateway authenticates callers and injects the verified
  account id as the X-Account-Id header. This middleware resolves that
  id to an account row, rejects blocked accounts, and stores the
  account in the request context. Handlers never read identity from
  the URL or body.

ADMIN GATING:
  One RequireAdmin middleware guards the whole /api/admin subtree, so
  no individual admin handler repeats the role check.

SEE ALSO:
  - server.go: middleware ordering
  - settlement/job.go: where account rows come from
*/
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prism/loyalty-engine/loyalty"
)

// accountHeader carries the verified caller id from the auth gateway.
const accountHeader = "X-Account-Id"

type contextKey string

const accountContextKey contextKey = "account"

// RequireAccount resolves the caller's account and stores it in the
// request context. 401 without a valid header, 403 for blocked
// accounts.
func (h *Handler) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(accountHeader)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing account identity", "")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid account identity", "")
			return
		}

		account, err := h.Store.GetAccount(r.Context(), loyalty.AccountID(id))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown account", "")
			return
		}
		if account.Blocked {
			writeError(w, http.StatusForbidden, "account blocked", "")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a subtree to admin accounts. Must run after
// RequireAccount.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !accountFrom(r.Context()).Admin {
			writeError(w, http.StatusForbidden, "admin access required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accountFrom returns the account placed in the context by
// RequireAccount. Zero value when absent (test handlers only).
func accountFrom(ctx context.Context) loyalty.Account {
	account, _ := ctx.Value(accountContextKey).(loyalty.Account)
	return account
}

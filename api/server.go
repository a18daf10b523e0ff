/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to
  handlers.

MIDDLEWARE STACK:
  1. Logger:         Request logging
  2. Recoverer:      Panic recovery (500 instead of crash)
  3. RequestID:      Unique ID per request for tracing
  4. CORS:           Cross-origin requests for the storefront
  5. RequireAccount: Identity resolution (everything under /api)
  6. RequireAdmin:   Role gate (only /api/admin)

ROUTE GROUPS:
  /api/discounts/*   User discount operations
  /api/profile/*     Account, balance, ledger history
  /api/exp/*         Wallet provisioning
  /api/admin/*       Catalog/rule CRUD, charges, listings, settlement

SEE ALSO:
  - handlers.go, admin.go: Handler implementations
  - auth.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", accountHeader},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.RequireAccount)

		// User discount routes
		r.Route("/discounts", func(r chi.Router) {
			r.Post("/buyPrimaryDiscount", h.BuyPrimaryDiscount)
			r.Post("/CombiningDiscounts", h.CombineDiscounts)
			r.Post("/ActivatedDiscount", h.ActivateDiscount)
			r.Get("/checkExchange/{discountId1}/{discountId2}", h.CheckExchange)
			r.Get("/getPrimaryDiscount", h.GetPrimaryDiscounts)
			r.Get("/getAllDiscountsUser", h.GetAllDiscountsUser)
		})

		// Profile routes
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", h.GetProfile)
			r.Get("/expHistory", h.GetExpHistory)
			r.Get("/getExpCount", h.GetExpCount)
		})

		// Wallet routes
		r.Route("/exp", func(r chi.Router) {
			r.Post("/createUserExpWallet", h.CreateExpWallet)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAdmin)

			r.Route("/discounts", func(r chi.Router) {
				r.Post("/createDiscount", h.CreateDiscount)
				r.Put("/updateDiscount/{id}", h.UpdateDiscount)
				r.Delete("/deleteDiscount/{id}", h.DeleteDiscount)
				r.Get("/getDiscount/{id}", h.GetDiscount)
				r.Get("/getAllDiscounts", h.GetAllDiscounts)
				r.Get("/getDiscountsNoPrimary", h.GetDiscountsNoPrimary)
				r.Post("/SwitchActivityDiscount/{id}", h.SwitchActivityDiscount)
			})

			r.Route("/exchanges", func(r chi.Router) {
				r.Post("/createDiscountExchange", h.CreateDiscountExchange)
				r.Put("/updateDiscountExchange/{id}", h.UpdateDiscountExchange)
				r.Get("/getExchangeDiscounts", h.GetExchangeDiscounts)
				r.Get("/getExchangeDiscount/{id}", h.GetExchangeDiscount)
			})

			r.Post("/chargeExp", h.ChargeExp)
			r.Post("/chargeDiscount", h.ChargeDiscount)

			r.Route("/ledger", func(r chi.Router) {
				r.Get("/GetExpChanges", h.GetExpChanges)
			})

			r.Route("/grants", func(r chi.Router) {
				r.Get("/GetUsersDiscounts", h.GetUsersDiscounts)
				r.Get("/getUserDiscountsActivated", h.GetUserDiscountsActivated)
				r.Get("/getUserDiscountsHistory", h.GetUserDiscountsHistory)
			})

			r.Route("/settlement", func(r chi.Router) {
				r.Post("/run", h.RunSettlement)
			})
		})
	})

	return r
}

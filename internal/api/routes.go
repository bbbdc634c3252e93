package api

import (
	"net/http"

	"github.com/Fi44er/coin_exchange/internal/realtime"
	"github.com/Fi44er/coin_exchange/internal/service"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	svc    *service.Service
	hub    *realtime.Hub
	tokens *Tokens
	logger *utils.Logger
}

func NewHandler(svc *service.Service, hub *realtime.Hub, tokens *Tokens, logger *utils.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, tokens: tokens, logger: logger}
}

func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Get("/prices/{coin}", h.price)
	r.Get("/prices/{coin}/history", h.priceHistory)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticated)

		r.Get("/me", h.me)
		r.Delete("/me", h.deleteMe)
		r.Post("/me/pin", h.setPin)
		r.Put("/me/pin", h.updatePin)
		r.Get("/me/referrals", h.myReferrals)

		r.Route("/wallets/{coin}", func(r chi.Router) {
			r.Post("/", h.generateWallet)
			r.Get("/address", h.address)
			r.Get("/balance", h.balance)
			r.Post("/validate", h.validateAddress)
			r.Post("/estimate", h.estimateFee)
			r.Post("/send", h.send)
			r.Get("/transactions", h.transactions)
		})

		r.Post("/orders/buy", h.buy)
		r.Post("/orders/sell", h.sell)
		r.Get("/orders", h.myOrders)

		r.Get("/notifications", h.notifications)

		r.Get("/swaps", h.listSwaps)
		r.Post("/swaps/range", h.swapRange)
		r.Post("/swaps", h.createSwap)

		r.Get("/settings", h.publicSettings)
		r.Get("/events", h.events)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.adminOnly)

			r.Get("/orders", h.allOrders)
			r.Post("/orders/{id}/approve", h.approve)
			r.Post("/orders/{id}/reject", h.reject)
			r.Post("/orders/{id}/confirming", h.markConfirming)
			r.Post("/orders/{id}/complete", h.completeSell)
			r.Get("/reconcile", h.reconcile)
			r.Post("/reconcile/{id}", h.resolveStuck)
			r.Get("/settings", h.adminSettings)
			r.Put("/settings", h.updateSettings)
			r.Get("/users", h.listUsers)
			r.Delete("/users/{id}", h.deleteUser)
			r.Get("/referrals", h.allReferrals)
		})
	})

	return r
}

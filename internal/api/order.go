package api

import (
	"net/http"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
)

type approveRequest struct {
	Pin string `json:"pin"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
	TxRef   string `json:"tx_ref"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (h *Handler) buy(w http.ResponseWriter, r *http.Request) {
	var req service.BuyInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if coin, ok := models.ParseCoin(string(req.Coin)); ok {
		req.Coin = coin
	}
	order, err := h.svc.Buy(r.Context(), userID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	var req service.SellInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if coin, ok := models.ParseCoin(string(req.Coin)); ok {
		req.Coin = coin
	}
	order, err := h.svc.Sell(r.Context(), userID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListForUser(r.Context(), userID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Approve(r.Context(), id, userID(r.Context()), req.Pin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(id uint, message string) (*models.Order, error) {
		return h.svc.Reject(r.Context(), id, message)
	})
}

func (h *Handler) markConfirming(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(id uint, _ string) (*models.Order, error) {
		return h.svc.MarkConfirming(r.Context(), id)
	})
}

func (h *Handler) completeSell(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(id uint, message string) (*models.Order, error) {
		return h.svc.CompleteSell(r.Context(), id, message)
	})
}

// orderTransition handles the admin endpoints that take an order id and an
// optional message body.
func (h *Handler) orderTransition(w http.ResponseWriter, r *http.Request, fn func(id uint, message string) (*models.Order, error)) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req messageRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	order, err := fn(id, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	stuck, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stuck))
}

func (h *Handler) resolveStuck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.ResolveStuck(r.Context(), id, req.Outcome, req.TxRef)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

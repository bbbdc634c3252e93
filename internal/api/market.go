package api

import (
	"net/http"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
)

type pairRequest struct {
	From models.Coin `json:"from"`
	To   models.Coin `json:"to"`
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	currency := r.URL.Query().Get("currency")
	p, err := h.svc.Price(r.Context(), coin, currency)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coin": coin, "currency": currency, "price": p})
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hist, err := h.svc.PriceHistory(r.Context(), coin, r.URL.Query().Get("currency"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func normalizePair(from, to models.Coin) (models.Coin, models.Coin) {
	if c, ok := models.ParseCoin(string(from)); ok {
		from = c
	}
	if c, ok := models.ParseCoin(string(to)); ok {
		to = c
	}
	return from, to
}

func (h *Handler) swapRange(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	from, to := normalizePair(req.From, req.To)
	rng, err := h.svc.SwapRange(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

func (h *Handler) createSwap(w http.ResponseWriter, r *http.Request) {
	var req service.SwapInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.From, req.To = normalizePair(req.From, req.To)
	sw, err := h.svc.CreateSwap(r.Context(), userID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sw)
}

func (h *Handler) listSwaps(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.svc.ListSwaps(r.Context(), userID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(swaps))
}

// notifications lists receive notifications. The coin filter is optional.
func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	var coin models.Coin
	if raw := r.URL.Query().Get("coin"); raw != "" {
		c, ok := models.ParseCoin(raw)
		if !ok {
			h.writeError(w, r, errUnsupportedCoin(raw))
			return
		}
		coin = c
	}
	list, err := h.svc.Notifications().List(r.Context(), userID(r.Context()), coin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeSSE(w, r, userID(r.Context()))
}

func (h *Handler) publicSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Settings().Public(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) adminSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Settings().Settings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch service.SettingsPatch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.svc.Settings().Update(r.Context(), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

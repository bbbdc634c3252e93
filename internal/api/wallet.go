package api

import (
	"net/http"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
	"github.com/shopspring/decimal"
)

type addressRequest struct {
	Address string `json:"address"`
}

type estimateRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) generateWallet(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	wallet, err := h.svc.GenerateWallet(r.Context(), userID(r.Context()), coin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Handler) address(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	addr, err := h.svc.Address(r.Context(), userID(r.Context()), coin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coin": coin, "address": addr})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.svc.Balance(r.Context(), userID(r.Context()), coin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coin": coin, "balance": bal})
}

func (h *Handler) validateAddress(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req addressRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	valid, err := h.svc.ValidateAddress(coin, req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) estimateFee(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req estimateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	est, err := h.svc.EstimateFee(r.Context(), userID(r.Context()), coin, req.To, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req service.SendInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Coin = coin
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	res, err := h.svc.Send(r.Context(), userID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	coin, err := coinParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.svc.Transactions(r.Context(), userID(r.Context()), coin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

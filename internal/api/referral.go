package api

import (
	"net/http"

	"github.com/Fi44er/coin_exchange/internal/models"
)

func (h *Handler) myReferrals(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.svc.MyReferralPayouts(r.Context(), userID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payouts))
}

// allReferrals serves the payout ledger, optionally narrowed by ?status=.
func (h *Handler) allReferrals(w http.ResponseWriter, r *http.Request) {
	status := models.ReferralPayoutStatus(r.URL.Query().Get("status"))
	payouts, err := h.svc.ListReferralPayouts(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payouts))
}

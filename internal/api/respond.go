package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:          http.StatusBadRequest,
	apperr.KindInvalidAmount:       http.StatusBadRequest,
	apperr.KindNotFound:            http.StatusNotFound,
	apperr.KindNoWallet:            http.StatusNotFound,
	apperr.KindAuth:                http.StatusUnauthorized,
	apperr.KindInvalidPin:          http.StatusForbidden,
	apperr.KindForbidden:           http.StatusForbidden,
	apperr.KindInvalidState:        http.StatusConflict,
	apperr.KindWalletMissing:       http.StatusConflict,
	apperr.KindInsufficientFunds:   http.StatusUnprocessableEntity,
	apperr.KindProvider:            http.StatusBadGateway,
	apperr.KindProviderUnavailable: http.StatusServiceUnavailable,
	apperr.KindTimeout:             http.StatusGatewayTimeout,
}

func statusOf(kind apperr.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the structured envelope. The cause chain is logged and
// never leaves the process.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)

	log := h.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"kind":   kind,
	})
	if code >= http.StatusInternalServerError {
		log.Errorf("Request failed: %v", err)
	} else {
		log.Debugf("Request rejected: %v", err)
	}

	writeJSON(w, code, errorEnvelope{Error: errorBody{Kind: kind, Message: apperr.MessageOf(err)}})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	return nil
}

func coinParam(r *http.Request) (models.Coin, error) {
	raw := chi.URLParam(r, "coin")
	coin, ok := models.ParseCoin(raw)
	if !ok {
		return "", errUnsupportedCoin(raw)
	}
	return coin, nil
}

func errUnsupportedCoin(raw string) error {
	return apperr.Newf(apperr.KindValidation, "unsupported coin %q", raw)
}

func idParam(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Newf(apperr.KindValidation, "invalid %s", name)
	}
	return uint(id), nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.KindValidation, "invalid %s", name)
	}
	return n, nil
}

// requestLogger logs one line per request through the application logger.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
			"request":  middleware.GetReqID(r.Context()),
		}).Info("HTTP request")
	})
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(user *models.User) (string, error) {
	now := t.now()
	claims := Claims{
		Admin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies raw and returns the user id and admin flag it carries.
func (t *Tokens) Parse(raw string) (uint, bool, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, false, errors.New("invalid or expired token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, false, errors.New("invalid token subject")
	}
	return uint(id), claims.Admin, nil
}

type ctxKey int

const (
	userIDKey ctxKey = iota
	adminKey
)

func userID(ctx context.Context) uint {
	id, _ := ctx.Value(userIDKey).(uint)
	return id
}

func isAdmin(ctx context.Context) bool {
	adm, _ := ctx.Value(adminKey).(bool)
	return adm
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	// EventSource clients cannot set headers.
	return r.URL.Query().Get("access_token")
}

func (h *Handler) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			h.writeError(w, r, apperr.New(apperr.KindAuth, "missing authorization header"))
			return
		}

		id, admin, err := h.tokens.Parse(raw)
		if err != nil {
			h.writeError(w, r, apperr.New(apperr.KindAuth, err.Error()))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, id)
		ctx = context.WithValue(ctx, adminKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly re-checks the flag against the store so a demoted admin's token
// stops working immediately.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r.Context()) {
			h.writeError(w, r, apperr.New(apperr.KindForbidden, "admin only"))
			return
		}
		user, err := h.svc.GetUser(r.Context(), userID(r.Context()))
		if err != nil || !user.IsAdmin {
			h.writeError(w, r, apperr.New(apperr.KindForbidden, "admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

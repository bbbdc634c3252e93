package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	referralCodeLen      = 8
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeAttempts = 10
	minPasswordLen       = 8
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

type RegisterInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferrerCode string `json:"referrer_code"`
}

// Profile is the signed-in user with their wallet addresses.
type Profile struct {
	User    *models.User           `json:"user"`
	Wallets map[models.Coin]string `json:"wallets"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.New(apperr.KindValidation, "a valid email is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Newf(apperr.KindValidation, "password must be at least %d characters", minPasswordLen)
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.KindValidation, "email is already registered")
	}

	referrerCode := strings.ToUpper(strings.TrimSpace(in.ReferrerCode))
	if referrerCode != "" {
		referrer, err := s.repo.GetUserByReferralCode(ctx, referrerCode)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, apperr.New(apperr.KindValidation, "unknown referral code")
		}
	}

	user, err := s.createUser(ctx, strings.TrimSpace(in.Name), email, in.Password, referrerCode, false)
	if err != nil {
		return nil, err
	}

	s.createWallets(ctx, user.ID)
	s.logger.Infof("👤 User #%d registered", user.ID)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, name, email, password, referrerCode string, admin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.uniqueReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Password:     string(hash),
		IsAdmin:      admin,
		ReferralCode: code,
		ReferrerID:   referrerCode,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) uniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code, err := randomCode(referralCodeLen)
		if err != nil {
			return "", err
		}
		taken, err := s.repo.GetUserByReferralCode(ctx, code)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to find a free referral code after %d attempts", referralCodeAttempts)
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		b[i] = referralCodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// createWallets allocates a wallet per coin. Failures are logged and the
// user can generate the wallet later.
func (s *Service) createWallets(ctx context.Context, userID uint) {
	for _, p := range s.providers.All() {
		if _, err := p.CreateWallet(ctx, userID); err != nil {
			s.logger.Warnf("Could not create %s wallet for user #%d: %v", p.Coin(), userID, err)
		}
	}
}

// Authenticate checks the credentials and returns the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindAuth, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.New(apperr.KindAuth, "invalid email or password")
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return user, nil
}

func (s *Service) Me(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: user, Wallets: make(map[models.Coin]string)}
	for _, coin := range models.Coins {
		w, err := s.repo.GetWallet(ctx, userID, coin)
		if err != nil {
			return nil, err
		}
		if w != nil {
			profile.Wallets[coin] = w.Address
		}
	}
	return profile, nil
}

func validatePin(pin string) error {
	if !pinPattern.MatchString(pin) {
		return apperr.New(apperr.KindValidation, "pin must be exactly 4 digits")
	}
	return nil
}

// SetPin sets the first PIN. Changing an existing PIN goes through UpdatePin.
func (s *Service) SetPin(ctx context.Context, userID uint, pin string) error {
	if err := validatePin(pin); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPin() {
		return apperr.New(apperr.KindValidation, "pin is already set")
	}
	return s.storePin(ctx, userID, pin)
}

func (s *Service) UpdatePin(ctx context.Context, userID uint, oldPin, newPin string) error {
	if err := validatePin(newPin); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := checkPin(user, oldPin); err != nil {
		return err
	}
	return s.storePin(ctx, userID, newPin)
}

func (s *Service) storePin(ctx context.Context, userID uint, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}
	return s.repo.UpdateUserPin(ctx, userID, string(hash))
}

func checkPin(user *models.User, pin string) error {
	if !user.HasPin() {
		return apperr.New(apperr.KindAuth, "pin is not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Pin), []byte(pin)); err != nil {
		return apperr.New(apperr.KindInvalidPin, "pin is not correct")
	}
	return nil
}

const (
	defaultUsersPage = 50
	maxUsersPage     = 200
)

// ListUsers pages through accounts in signup order. A non-positive limit
// means the default page size.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if offset < 0 {
		return nil, apperr.New(apperr.KindValidation, "offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = defaultUsersPage
	case limit > maxUsersPage:
		limit = maxUsersPage
	}
	return s.repo.ListUsers(ctx, limit, offset)
}

// DeleteUser removes the user and their wallets. Orders, notifications and
// swaps are kept.
func (s *Service) DeleteUser(ctx context.Context, userID uint) error {
	deleted, err := s.repo.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsAdmin {
			s.logger.Warnf("Bootstrap admin %s exists but is not an admin", email)
		}
		s.createWallets(ctx, existing.ID)
		return existing, nil
	}

	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("admin password must be at least %d characters", minPasswordLen)
	}

	admin, err := s.createUser(ctx, "admin", email, password, "", true)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	s.createWallets(ctx, admin.ID)

	s.logger.Infof("👑 Admin #%d created", admin.ID)
	return admin, nil
}

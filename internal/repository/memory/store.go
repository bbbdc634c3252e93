// Package memory is an in-process implementation of the repository contracts.
// It backs the server when no database is configured and is used by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Fi44er/coin_exchange/internal/models"
)

type Store struct {
	mu sync.RWMutex

	nextID map[string]uint

	users         map[uint]models.User
	wallets       map[uint]models.Wallet
	orders        map[uint]models.Order
	notifications []models.Notification
	swaps         []models.Swap
	transfers     map[string]models.Transfer
	payouts       []models.ReferralPayout
	settings      *models.Settings
}

func NewStore() *Store {
	return &Store{
		nextID:    make(map[string]uint),
		users:     make(map[uint]models.User),
		wallets:   make(map[uint]models.Wallet),
		orders:    make(map[uint]models.Order),
		transfers: make(map[string]models.Transfer),
	}
}

func (s *Store) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to create user: email %s already exists", user.Email)
		}
		if user.ReferralCode != "" && u.ReferralCode == user.ReferralCode {
			return fmt.Errorf("failed to create user: referral code %s already exists", user.ReferralCode)
		}
	}

	now := time.Now()
	user.ID = s.id("users")
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.Wallets = nil
	s.users[user.ID] = stored
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *Store) GetUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, nil
	}
	return s.findUser(func(u *models.User) bool { return u.ReferralCode == code })
}

func (s *Store) GetTreasuryAdmin(_ context.Context) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.IsAdmin })
}

// findUser returns the lowest-id user matching fn.
func (s *Store) ListUsers(_ context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if offset >= len(out) {
		return []*models.User{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) findUser(fn func(u *models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.User
	for _, u := range s.users {
		u := u
		if fn(&u) && (found == nil || u.ID < found.ID) {
			found = &u
		}
	}
	return found, nil
}

func (s *Store) UpdateUserPin(_ context.Context, id uint, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d not found for pin update", id)
	}
	u.Pin = pinHash
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *Store) ClaimReferrerPaid(_ context.Context, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.ReferrerPaid {
		return false, nil
	}
	u.ReferrerPaid = true
	s.users[userID] = u
	return true, nil
}

func (s *Store) ListUnpaidReferredUsers(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*models.User
	for _, u := range s.users {
		u := u
		if u.ReferrerID != "" && !u.ReferrerPaid {
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) DeleteUser(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for wid, w := range s.wallets {
		if w.UserID == id {
			delete(s.wallets, wid)
		}
	}
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

// --- wallets ---

func (s *Store) CreateWallet(_ context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.UserID == wallet.UserID && w.Coin == wallet.Coin {
			return fmt.Errorf("failed to create %s wallet for user %d: already exists", wallet.Coin, wallet.UserID)
		}
	}

	wallet.ID = s.id("wallets")
	wallet.CreatedAt = time.Now()
	s.wallets[wallet.ID] = *wallet
	return nil
}

func (s *Store) GetWallet(_ context.Context, userID uint, coin models.Coin) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.wallets {
		if w.UserID == userID && w.Coin == coin {
			return &w, nil
		}
	}
	return nil, nil
}

// --- orders ---

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	order.ID = s.id("orders")
	order.CreatedAt, order.UpdatedAt = now, now
	s.orders[order.ID] = *order
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uint) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) listOrders(keep func(o *models.Order) bool, newestFirst bool) []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []*models.Order
	for _, o := range s.orders {
		o := o
		if keep(&o) {
			orders = append(orders, &o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if newestFirst {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

func (s *Store) ListOrders(_ context.Context) ([]*models.Order, error) {
	return s.listOrders(func(*models.Order) bool { return true }, true), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID uint) ([]*models.Order, error) {
	return s.listOrders(func(o *models.Order) bool { return o.UserID == userID }, true), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, status models.OrderStatus) ([]*models.Order, error) {
	return s.listOrders(func(o *models.Order) bool { return o.Status == status }, false), nil
}

func (s *Store) ListPendingSettlements(_ context.Context) ([]*models.Order, error) {
	return s.listOrders(func(o *models.Order) bool {
		return o.Status == models.OrderPending && o.SettlementKey != ""
	}, false), nil
}

func (s *Store) SetSettlementKey(_ context.Context, id uint, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.SettlementKey != "" {
		return fmt.Errorf("order %d already has a settlement key", id)
	}
	o.SettlementKey = key
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return nil
}

func (s *Store) TransitionOrder(_ context.Context, id uint, from []models.OrderStatus, to models.OrderStatus, message, txRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, nil
	}

	allowed := false
	for _, st := range from {
		if o.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	o.Status = to
	if message != "" {
		o.Message = message
	}
	if txRef != "" {
		o.TxRef = txRef
	}
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return true, nil
}

// --- notifications ---

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.TransactionHash != "" {
		for _, existing := range s.notifications {
			if existing.UserID == n.UserID && existing.TransactionHash == n.TransactionHash {
				return false, nil
			}
		}
	}

	n.ID = s.id("notifications")
	n.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *n)
	return true, nil
}

func (s *Store) ListNotifications(_ context.Context, userID uint, coin models.Coin) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (coin != "" && n.Coin != coin) {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

// --- swaps ---

func (s *Store) CreateSwap(_ context.Context, swap *models.Swap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap.ID = s.id("swaps")
	swap.CreatedAt = time.Now()
	s.swaps = append(s.swaps, *swap)
	return nil
}

func (s *Store) ListSwaps(_ context.Context, userID uint) ([]*models.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Swap
	for i := len(s.swaps) - 1; i >= 0; i-- {
		sw := s.swaps[i]
		if sw.UserID == userID {
			out = append(out, &sw)
		}
	}
	return out, nil
}

// --- transfers ---

func (s *Store) GetTransfer(_ context.Context, key string) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SaveTransfer(_ context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.transfers[t.IdempotencyKey]; ok {
		existing.Status = t.Status
		existing.TxRef = t.TxRef
		existing.Error = t.Error
		existing.UpdatedAt = now
		s.transfers[t.IdempotencyKey] = existing
		*t = existing
		return nil
	}

	t.ID = s.id("transfers")
	t.CreatedAt, t.UpdatedAt = now, now
	s.transfers[t.IdempotencyKey] = *t
	return nil
}

// --- referral payouts ---

func (s *Store) CreateReferralPayout(_ context.Context, payout *models.ReferralPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payouts {
		if p.ReferredUserID == payout.ReferredUserID {
			return fmt.Errorf("failed to record referral payout for user %d: already recorded", payout.ReferredUserID)
		}
	}
	payout.ID = s.id("payouts")
	payout.CreatedAt = time.Now()
	s.payouts = append(s.payouts, *payout)
	return nil
}

func (s *Store) ListReferralPayouts(_ context.Context, referrerID uint) ([]*models.ReferralPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ReferralPayout
	for i := len(s.payouts) - 1; i >= 0; i-- {
		p := s.payouts[i]
		if p.ReferrerUserID == referrerID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *Store) ListAllReferralPayouts(_ context.Context, status models.ReferralPayoutStatus) ([]*models.ReferralPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.ReferralPayout{}
	for i := len(s.payouts) - 1; i >= 0; i-- {
		p := s.payouts[i]
		if status == "" || p.Status == status {
			out = append(out, &p)
		}
	}
	return out, nil
}

// --- settings ---

func (s *Store) GetSettings(_ context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, nil
	}
	cp := *s.settings
	return &cp, nil
}

func (s *Store) SaveSettings(_ context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.ID = 1
	settings.UpdatedAt = time.Now()
	cp := *settings
	s.settings = &cp
	return nil
}

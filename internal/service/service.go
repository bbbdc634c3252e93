package service

import (
	"context"

	"github.com/Fi44er/coin_exchange/config"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/price"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/settlement"
	"github.com/Fi44er/coin_exchange/internal/swap"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo          Repository
	providers     Providers
	prices        PriceOracle
	swaps         SwapClient
	engine        Settler
	referral      ReferralPayer
	notifications *NotificationSink
	settings      *SettingsStore
	alerter       Alerter
	locks         *utils.KeyedMutex
	logger        *utils.Logger
	config        *config.Config
}

type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	GetTreasuryAdmin(ctx context.Context) (*models.User, error)
	UpdateUserPin(ctx context.Context, id uint, pinHash string) error
	ListUnpaidReferredUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id uint) (bool, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)

	ListReferralPayouts(ctx context.Context, referrerID uint) ([]*models.ReferralPayout, error)
	ListAllReferralPayouts(ctx context.Context, status models.ReferralPayoutStatus) ([]*models.ReferralPayout, error)

	GetWallet(ctx context.Context, userID uint, coin models.Coin) (*models.Wallet, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uint) ([]*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	ListPendingSettlements(ctx context.Context) ([]*models.Order, error)
	SetSettlementKey(ctx context.Context, id uint, key string) error
	TransitionOrder(ctx context.Context, id uint, from []models.OrderStatus, to models.OrderStatus, message, txRef string) (bool, error)

	CreateSwap(ctx context.Context, swap *models.Swap) error
	ListSwaps(ctx context.Context, userID uint) ([]*models.Swap, error)

	GetTransfer(ctx context.Context, key string) (*models.Transfer, error)
	SaveTransfer(ctx context.Context, t *models.Transfer) error
}

type Providers interface {
	Get(coin models.Coin) (wallet.CoinWalletProvider, error)
	All() []wallet.CoinWalletProvider
}

type PriceOracle interface {
	Current(ctx context.Context, coin models.Coin, fiat string) (decimal.Decimal, error)
	History(ctx context.Context, coin models.Coin, fiat string) (price.History, error)
}

type SwapClient interface {
	Ranges(ctx context.Context, from, to models.Coin) (*swap.Range, error)
	CreateExchange(ctx context.Context, req swap.ExchangeRequest) (*swap.Exchange, error)
}

type Settler interface {
	Settle(ctx context.Context, order *models.Order, adminID uint, pin string) (*settlement.Outcome, error)
	Complete(ctx context.Context, order *models.Order, adminID uint, ref string) (*settlement.Outcome, error)
}

type ReferralPayer interface {
	Payout(ctx context.Context, in referral.Input) (*referral.Result, error)
}

// Alerter delivers operator alerts. Implementations must not block for long.
type Alerter interface {
	NotifyNewOrder(ctx context.Context, order *models.Order)
	NotifySettlementFailed(ctx context.Context, order *models.Order, err error)
	NotifyStuckOrders(ctx context.Context, stuck []StuckOrder)
}

type nopAlerter struct{}

func (nopAlerter) NotifyNewOrder(context.Context, *models.Order)                {}
func (nopAlerter) NotifySettlementFailed(context.Context, *models.Order, error) {}
func (nopAlerter) NotifyStuckOrders(context.Context, []StuckOrder)              {}

type Deps struct {
	Providers     Providers
	Prices        PriceOracle
	Swaps         SwapClient
	Engine        Settler
	Referral      ReferralPayer
	Notifications *NotificationSink
	Settings      *SettingsStore
	Locks         *utils.KeyedMutex
}

func NewService(repo Repository, deps Deps, cfg *config.Config, logger *utils.Logger) *Service {
	locks := deps.Locks
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &Service{
		repo:          repo,
		providers:     deps.Providers,
		prices:        deps.Prices,
		swaps:         deps.Swaps,
		engine:        deps.Engine,
		referral:      deps.Referral,
		notifications: deps.Notifications,
		settings:      deps.Settings,
		alerter:       nopAlerter{},
		locks:         locks,
		logger:        logger,
		config:        cfg,
	}
}

// SetAlerter installs the operator alert channel. A nil alerter disables alerts.
func (s *Service) SetAlerter(a Alerter) {
	if a == nil {
		s.alerter = nopAlerter{}
		return
	}
	s.alerter = a
}

func (s *Service) Price(ctx context.Context, coin models.Coin, fiat string) (decimal.Decimal, error) {
	return s.prices.Current(ctx, coin, fiat)
}

func (s *Service) PriceHistory(ctx context.Context, coin models.Coin, fiat string) (price.History, error) {
	return s.prices.History(ctx, coin, fiat)
}

func (s *Service) Settings() *SettingsStore {
	return s.settings
}

func (s *Service) Notifications() *NotificationSink {
	return s.notifications
}

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Chain is the coin-specific backend behind a Provider: a wallet service for
// BTC, an Ethereum node for ETH and ERC-20 tokens.
type Chain interface {
	Coin() models.Coin
	// NewWallet allocates key material and returns an unsaved wallet with
	// Address, ExternalID and Credentials filled in.
	NewWallet(ctx context.Context, label string) (*models.Wallet, error)
	Balance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error)
	EstimateFee(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, w *models.Wallet, to string, amount decimal.Decimal, idempotencyKey string) (string, error)
	History(ctx context.Context, w *models.Wallet) ([]models.Transaction, error)
	ValidAddress(address string) bool
}

// CoinWalletProvider is the uniform per-coin wallet contract the rest of the
// system is written against.
type CoinWalletProvider interface {
	Coin() models.Coin
	CreateWallet(ctx context.Context, ownerID uint) (*models.Wallet, error)
	GetAddress(ctx context.Context, ownerID uint) (string, error)
	GetBalance(ctx context.Context, ownerID uint) (decimal.Decimal, error)
	EstimateFee(ctx context.Context, ownerID uint, recipient string, amount decimal.Decimal) (decimal.Decimal, error)
	Send(ctx context.Context, req SendRequest) (string, error)
	ListTransactions(ctx context.Context, ownerID uint) ([]models.Transaction, error)
	IsValidAddress(address string) bool
}

type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetWallet(ctx context.Context, userID uint, coin models.Coin) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetTransfer(ctx context.Context, key string) (*models.Transfer, error)
	SaveTransfer(ctx context.Context, t *models.Transfer) error
}

type SendRequest struct {
	OwnerID uint
	To      string
	Amount  decimal.Decimal
	PIN     string
	// SystemInitiated skips the PIN check. Only internal payouts set it.
	SystemInitiated bool
	// IdempotencyKey identifies the send across retries. Empty means a fresh key.
	IdempotencyKey string
}

// ReceiveHandler is called by ListTransactions with the receive entries found,
// newest first.
type ReceiveHandler func(ctx context.Context, w *models.Wallet, received []models.Transaction)

type Provider struct {
	chain     Chain
	store     Store
	locks     *utils.KeyedMutex
	timeout   time.Duration
	logger    *utils.Logger
	onReceive ReceiveHandler
}

func NewProvider(chain Chain, store Store, locks *utils.KeyedMutex, timeout time.Duration, logger *utils.Logger) *Provider {
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &Provider{
		chain:   chain,
		store:   store,
		locks:   locks,
		timeout: timeout,
		logger:  logger,
	}
}

// OnReceive installs the receive handler. Call before serving traffic.
func (p *Provider) OnReceive(h ReceiveHandler) {
	p.onReceive = h
}

func (p *Provider) Coin() models.Coin {
	return p.chain.Coin()
}

func (p *Provider) IsValidAddress(address string) bool {
	return p.chain.ValidAddress(address)
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) lockKey(ownerID uint) string {
	return fmt.Sprintf("wallet:%d:%s", ownerID, p.Coin())
}

func (p *Provider) CreateWallet(ctx context.Context, ownerID uint) (*models.Wallet, error) {
	unlock := p.locks.Lock(p.lockKey(ownerID))
	defer unlock()

	existing, err := p.store.GetWallet(ctx, ownerID, p.Coin())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	cctx, cancel := p.withTimeout(ctx)
	w, err := p.chain.NewWallet(cctx, fmt.Sprintf("user-%d-%s", ownerID, p.Coin()))
	cancel()
	if err != nil {
		p.logger.Errorf("Failed to allocate %s wallet for user %d: %v", p.Coin(), ownerID, err)
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, fmt.Sprintf("%s wallet could not be allocated", p.Coin()), err)
	}

	w.UserID = ownerID
	w.Coin = p.Coin()
	if err := p.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}

	p.logger.Infof("✅ %s wallet created for user %d: %s", p.Coin(), ownerID, w.Address)
	return w, nil
}

func (p *Provider) wallet(ctx context.Context, ownerID uint) (*models.Wallet, error) {
	w, err := p.store.GetWallet(ctx, ownerID, p.Coin())
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apperr.Newf(apperr.KindNoWallet, "no %s wallet", p.Coin())
	}
	return w, nil
}

func (p *Provider) GetAddress(ctx context.Context, ownerID uint) (string, error) {
	w, err := p.store.GetWallet(ctx, ownerID, p.Coin())
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", apperr.Newf(apperr.KindNotFound, "no %s wallet", p.Coin())
	}
	return w.Address, nil
}

func (p *Provider) GetBalance(ctx context.Context, ownerID uint) (decimal.Decimal, error) {
	w, err := p.wallet(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.balance(ctx, w)
}

func (p *Provider) balance(ctx context.Context, w *models.Wallet) (decimal.Decimal, error) {
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()

	bal, err := p.chain.Balance(cctx, w)
	if err != nil {
		return decimal.Zero, apperr.FromUpstream(fmt.Sprintf("%s balance unavailable", p.Coin()), err)
	}
	return bal, nil
}

func (p *Provider) EstimateFee(ctx context.Context, ownerID uint, recipient string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}
	if !p.chain.ValidAddress(recipient) {
		return decimal.Zero, apperr.Newf(apperr.KindValidation, "invalid %s address", p.Coin())
	}

	w, err := p.wallet(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}

	cctx, cancel := p.withTimeout(ctx)
	defer cancel()

	fee, err := p.chain.EstimateFee(cctx, w, recipient, amount)
	if err != nil {
		return decimal.Zero, apperr.FromUpstream(fmt.Sprintf("%s fee estimate failed", p.Coin()), err)
	}
	return fee, nil
}

func (p *Provider) checkPin(ctx context.Context, ownerID uint, pin string) error {
	user, err := p.store.GetUser(ctx, ownerID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	if !user.HasPin() {
		return apperr.New(apperr.KindAuth, "pin is not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Pin), []byte(pin)); err != nil {
		return apperr.New(apperr.KindInvalidPin, "pin is not correct")
	}
	return nil
}

// Send moves amount from the owner's wallet to recipient. Sends are journaled
// by idempotency key: a key that already went out returns the recorded
// reference, and a key whose outcome is unknown is refused until reconciled.
// Sends from the same wallet are serialized.
func (p *Provider) Send(ctx context.Context, req SendRequest) (string, error) {
	coin := p.Coin()

	if !req.Amount.IsPositive() {
		return "", apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}
	if !p.chain.ValidAddress(req.To) {
		return "", apperr.Newf(apperr.KindValidation, "invalid %s address", coin)
	}

	w, err := p.wallet(ctx, req.OwnerID)
	if err != nil {
		return "", err
	}

	if !req.SystemInitiated {
		if err := p.checkPin(ctx, req.OwnerID, req.PIN); err != nil {
			return "", err
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	unlock := p.locks.Lock(p.lockKey(req.OwnerID))
	defer unlock()

	log := p.logger.WithFields(logrus.Fields{
		"coin":  coin,
		"owner": req.OwnerID,
		"key":   key,
	})

	journal, err := p.store.GetTransfer(ctx, key)
	if err != nil {
		return "", err
	}
	if journal != nil {
		if journal.To != req.To || !journal.Amount.Equal(req.Amount) || journal.OwnerID != req.OwnerID {
			return "", apperr.New(apperr.KindValidation, "idempotency key reused for a different transfer")
		}
		switch journal.Status {
		case models.TransferSent:
			log.Infof("Send already completed, returning %s", journal.TxRef)
			return journal.TxRef, nil
		case models.TransferInitiated:
			return "", apperr.New(apperr.KindTimeout, "a previous send with this key has an unknown outcome")
		}
	}

	bal, err := p.balance(ctx, w)
	if err != nil {
		return "", err
	}
	if bal.LessThan(req.Amount) {
		return "", apperr.Newf(apperr.KindInsufficientFunds, "insufficient %s balance", coin)
	}

	if journal == nil {
		journal = &models.Transfer{
			IdempotencyKey: key,
			OwnerID:        req.OwnerID,
			Coin:           coin,
			To:             req.To,
			Amount:         req.Amount,
		}
	}
	journal.Status = models.TransferInitiated
	journal.Error = ""
	if err := p.store.SaveTransfer(ctx, journal); err != nil {
		return "", err
	}

	cctx, cancel := p.withTimeout(ctx)
	ref, sendErr := p.chain.Transfer(cctx, w, req.To, req.Amount, key)
	cancel()

	if sendErr != nil {
		appErr := apperr.FromUpstream(fmt.Sprintf("%s send failed", coin), sendErr)
		if appErr.Kind == apperr.KindTimeout {
			log.Warnf("⚠️ Send outcome unknown, left for reconciliation: %v", sendErr)
			return "", appErr
		}

		journal.Status = models.TransferFailed
		journal.Error = sendErr.Error()
		if err := p.store.SaveTransfer(ctx, journal); err != nil {
			log.Errorf("Failed to record failed send: %v", err)
		}
		log.Errorf("Send failed: %v", sendErr)
		return "", appErr
	}

	journal.Status = models.TransferSent
	journal.TxRef = ref
	if err := p.store.SaveTransfer(ctx, journal); err != nil {
		// The funds moved; the journal row stays "initiated" and shows up in reconciliation.
		log.Errorf("Send %s went out but could not be journaled: %v", ref, err)
	}

	log.Infof("💸 Sent %s %s to %s: %s", req.Amount, coin, req.To, ref)
	return ref, nil
}

// ListTransactions returns the wallet history newest first, limited to
// positive amounts with a known direction.
func (p *Provider) ListTransactions(ctx context.Context, ownerID uint) ([]models.Transaction, error) {
	w, err := p.wallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cctx, cancel := p.withTimeout(ctx)
	raw, err := p.chain.History(cctx, w)
	cancel()
	if err != nil {
		return nil, apperr.FromUpstream(fmt.Sprintf("%s history unavailable", p.Coin()), err)
	}

	txs := make([]models.Transaction, 0, len(raw))
	var received []models.Transaction
	for _, tx := range raw {
		if !tx.Amount.IsPositive() {
			continue
		}
		if tx.Type != models.TxSend && tx.Type != models.TxReceive {
			continue
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})

	for _, tx := range txs {
		if tx.Type == models.TxReceive {
			received = append(received, tx)
		}
	}

	if len(received) > 0 && p.onReceive != nil {
		p.onReceive(ctx, w, received)
	}

	return txs, nil
}

// IsNoWallet reports whether err means the owner has no wallet for the coin.
func IsNoWallet(err error) bool {
	return errors.Is(err, apperr.ErrNoWallet) || errors.Is(err, apperr.ErrNotFound)
}

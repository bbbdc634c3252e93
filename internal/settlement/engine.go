package settlement

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/sirupsen/logrus"
)

type Providers interface {
	Get(coin models.Coin) (wallet.CoinWalletProvider, error)
}

// Notifier persists a notification and pushes message to the user's live
// sessions when it is new.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification, message string) (bool, error)
}

type ReferralPayer interface {
	Payout(ctx context.Context, in referral.Input) (*referral.Result, error)
}

type Outcome struct {
	TxRef    string
	Referral *referral.Result
}

// Engine moves the coins of an approved buy order from the admin wallet to
// the buyer.
type Engine struct {
	providers Providers
	notifier  Notifier
	referral  ReferralPayer
	logger    *utils.Logger
}

func NewEngine(providers Providers, notifier Notifier, referral ReferralPayer, logger *utils.Logger) *Engine {
	return &Engine{providers: providers, notifier: notifier, referral: referral, logger: logger}
}

// SettlementKey is the idempotency key used when order has none persisted.
func SettlementKey(order *models.Order) string {
	if order.SettlementKey != "" {
		return order.SettlementKey
	}
	return fmt.Sprintf("order:%d", order.ID)
}

// Settle performs the single send for order. Errors from the send are
// returned as is and nothing after it runs; the caller keeps the order
// pending. Notification and referral failures are logged only.
func (e *Engine) Settle(ctx context.Context, order *models.Order, adminID uint, pin string) (*Outcome, error) {
	if order.Status != models.OrderPending || order.Type != models.OrderBuy {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d is not a pending buy order", order.ID)
	}
	if !order.AmountToRecieve.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "order amount must be positive")
	}

	provider, err := e.providers.Get(order.Coin)
	if err != nil {
		return nil, err
	}

	receiverAddr, err := e.address(ctx, provider, order.UserID, "buyer")
	if err != nil {
		return nil, err
	}
	adminAddr, err := e.address(ctx, provider, adminID, "admin")
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"order": order.ID,
		"user":  order.UserID,
		"coin":  order.Coin,
	})

	ref, err := provider.Send(ctx, wallet.SendRequest{
		OwnerID:        adminID,
		To:             receiverAddr,
		Amount:         order.AmountToRecieve,
		PIN:            pin,
		IdempotencyKey: SettlementKey(order),
	})
	if err != nil {
		log.Errorf("Settlement send failed: %v", err)
		return nil, err
	}
	log.Infof("✅ Order settled: %s", ref)

	return e.finish(ctx, order, adminID, adminAddr, receiverAddr, ref), nil
}

// Complete runs the post-send steps for an order whose send is already known
// to have gone out as ref. Nothing is sent.
func (e *Engine) Complete(ctx context.Context, order *models.Order, adminID uint, ref string) (*Outcome, error) {
	provider, err := e.providers.Get(order.Coin)
	if err != nil {
		return nil, err
	}

	// The addresses only label the notification.
	receiverAddr, _ := provider.GetAddress(ctx, order.UserID)
	adminAddr, _ := provider.GetAddress(ctx, adminID)

	return e.finish(ctx, order, adminID, adminAddr, receiverAddr, ref), nil
}

func (e *Engine) finish(ctx context.Context, order *models.Order, adminID uint, adminAddr, receiverAddr, ref string) *Outcome {
	log := e.logger.WithFields(logrus.Fields{
		"order": order.ID,
		"user":  order.UserID,
		"coin":  order.Coin,
	})

	message := fmt.Sprintf("You've Received %s %s", order.AmountToRecieve.StringFixed(order.Coin.Precision()), order.Coin)
	if _, err := e.notifier.Notify(ctx, &models.Notification{
		UserID:          order.UserID,
		From:            adminAddr,
		To:              receiverAddr,
		Amount:          order.AmountToRecieve,
		Coin:            order.Coin,
		TransactionHash: ref,
	}, message); err != nil {
		log.Errorf("Failed to record settlement notification: %v", err)
	}

	out := &Outcome{TxRef: ref}

	res, err := e.referral.Payout(ctx, referral.Input{
		UserID:  order.UserID,
		Amount:  order.AmountToRecieve,
		Coin:    order.Coin,
		AdminID: adminID,
		Source:  referral.SourceSettlement,
	})
	if err != nil {
		log.Errorf("Referral payout failed: %v", err)
	} else {
		out.Referral = res
	}

	return out
}

func (e *Engine) address(ctx context.Context, provider wallet.CoinWalletProvider, ownerID uint, role string) (string, error) {
	addr, err := provider.GetAddress(ctx, ownerID)
	if err != nil {
		if wallet.IsNoWallet(err) {
			return "", apperr.Newf(apperr.KindWalletMissing, "%s has no %s wallet", role, provider.Coin())
		}
		return "", err
	}
	return addr, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/price"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const fiatPrecision = 2

type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

func (b BankDetails) validate() error {
	if strings.TrimSpace(b.BankName) == "" || strings.TrimSpace(b.AccountNumber) == "" || strings.TrimSpace(b.AccountHolder) == "" {
		return apperr.New(apperr.KindValidation, "bank name, account number and account holder are required")
	}
	return nil
}

type BuyInput struct {
	Coin models.Coin `json:"coin"`
	// Amount is the fiat amount the user pays.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Bank     BankDetails     `json:"bank"`
}

type SellInput struct {
	Coin models.Coin `json:"coin"`
	// Amount is the coin amount the user sells.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	PIN      string          `json:"pin"`
	Bank     BankDetails     `json:"bank"`
}

func orderLockKey(id uint) string {
	return fmt.Sprintf("order:%d", id)
}

// Buy records a request to buy coins against a bank transfer. The coin amount
// is fixed at the current price.
func (s *Service) Buy(ctx context.Context, userID uint, in BuyInput) (*models.Order, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}
	if err := in.Bank.validate(); err != nil {
		return nil, err
	}
	currency, err := price.NormalizeFiat(in.Currency)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(in.Coin)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if min := settings.MinBuy(currency); min.IsPositive() && in.Amount.LessThan(min) {
		return nil, apperr.Newf(apperr.KindValidation, "minimum buy is %s %s", min.StringFixed(fiatPrecision), currency)
	}

	rate, err := s.prices.Current(ctx, in.Coin, currency)
	if err != nil {
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, apperr.Newf(apperr.KindProvider, "no %s price in %s", in.Coin, currency)
	}

	coins := utils.RoundTo(in.Amount.Div(rate), in.Coin.Precision())
	if !coins.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount is too small")
	}

	// The buyer needs a wallet to be settled into.
	if _, err := p.CreateWallet(ctx, userID); err != nil {
		return nil, err
	}

	return s.CreateOrder(ctx, &models.Order{
		UserID:          userID,
		Type:            models.OrderBuy,
		Coin:            in.Coin,
		AmountSent:      in.Amount,
		AmountToRecieve: coins,
		Currency:        currency,
		BankName:        in.Bank.BankName,
		AccountNumber:   in.Bank.AccountNumber,
		AccountHolder:   in.Bank.AccountHolder,
	})
}

// Sell moves the coins to the treasury and records an order for the bank
// payout, priced at the current rate.
func (s *Service) Sell(ctx context.Context, userID uint, in SellInput) (*models.Order, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}
	if err := in.Bank.validate(); err != nil {
		return nil, err
	}
	currency, err := price.NormalizeFiat(in.Currency)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(in.Coin)
	if err != nil {
		return nil, err
	}

	rate, err := s.prices.Current(ctx, in.Coin, currency)
	if err != nil {
		return nil, err
	}
	fiat := utils.RoundTo(in.Amount.Mul(rate), fiatPrecision)

	treasuryAddr, err := s.treasuryAddress(ctx, p)
	if err != nil {
		return nil, err
	}

	ref, err := p.Send(ctx, wallet.SendRequest{
		OwnerID:        userID,
		To:             treasuryAddr,
		Amount:         in.Amount,
		PIN:            in.PIN,
		IdempotencyKey: fmt.Sprintf("sell:%d:%s", userID, uuid.NewString()),
	})
	if err != nil {
		return nil, err
	}

	order, err := s.CreateOrder(ctx, &models.Order{
		UserID:          userID,
		Type:            models.OrderSell,
		Coin:            in.Coin,
		AmountSent:      in.Amount,
		AmountToRecieve: fiat,
		Currency:        currency,
		BankName:        in.Bank.BankName,
		AccountNumber:   in.Bank.AccountNumber,
		AccountHolder:   in.Bank.AccountHolder,
		TxRef:           ref,
	})
	if err != nil {
		s.logger.Errorf("Sell transfer %s from user #%d went out but the order was not recorded: %v", ref, userID, err)
		return nil, err
	}
	return order, nil
}

// CreateOrder stores order as pending and alerts the admins.
func (s *Service) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.Status = models.OrderPending
	order.SettlementKey = ""
	order.Message = ""

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order": order.ID,
		"user":  order.UserID,
		"type":  order.Type,
		"coin":  order.Coin,
	}).Infof("🧾 New order for %s", order.AmountToRecieve)

	s.alerter.NotifyNewOrder(ctx, order)
	return order, nil
}

func (s *Service) getOrder(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "order %d not found", id)
	}
	return order, nil
}

// Approve settles a pending buy order from the admin's wallet and marks it
// completed. Approvals of one order are serialized, and the settlement key
// persisted before the first attempt makes every retry the same send.
func (s *Service) Approve(ctx context.Context, orderID, adminID uint, pin string) (*models.Order, error) {
	unlock := s.locks.Lock(orderLockKey(orderID))
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending || order.Type != models.OrderBuy {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d is %s %s, only pending buy orders can be approved", order.ID, order.Status, order.Type)
	}

	if order.SettlementKey == "" {
		key := fmt.Sprintf("order:%d:%s", order.ID, uuid.NewString())
		if err := s.repo.SetSettlementKey(ctx, order.ID, key); err != nil {
			return nil, err
		}
		order.SettlementKey = key
	}

	out, err := s.engine.Settle(ctx, order, adminID, pin)
	if err != nil {
		if alertable(err) {
			s.alerter.NotifySettlementFailed(ctx, order, err)
		}
		return nil, err
	}

	return s.complete(ctx, order, out.TxRef)
}

func (s *Service) complete(ctx context.Context, order *models.Order, txRef string) (*models.Order, error) {
	ok, err := s.repo.TransitionOrder(ctx, order.ID, []models.OrderStatus{models.OrderPending}, models.OrderCompleted, "", txRef)
	if err != nil {
		s.logger.Errorf("Order #%d was settled as %s but could not be marked completed: %v", order.ID, txRef, err)
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d changed state during settlement", order.ID)
	}

	order.Status = models.OrderCompleted
	order.TxRef = txRef
	return order, nil
}

// alertable reports whether a settlement failure needs operator attention
// rather than being the admin's own input mistake.
func alertable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindAuth, apperr.KindInvalidPin, apperr.KindValidation, apperr.KindInvalidState, apperr.KindInvalidAmount:
		return false
	}
	return true
}

// Reject closes a pending or confirming order with reason. No funds move.
func (s *Service) Reject(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	unlock := s.locks.Lock(orderLockKey(orderID))
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if inFlight, err := s.settlementInFlight(ctx, order); err != nil {
		return nil, err
	} else if inFlight {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d has a settlement send in flight, reconcile it first", order.ID)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "rejected"
	}

	ok, err := s.repo.TransitionOrder(ctx, order.ID, []models.OrderStatus{models.OrderPending, models.OrderConfirming}, models.OrderRejected, reason, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d is %s and cannot be rejected", order.ID, order.Status)
	}

	order.Status = models.OrderRejected
	order.Message = reason
	s.logger.Infof("❌ Order #%d rejected: %s", order.ID, reason)
	return order, nil
}

// settlementInFlight reports whether a settlement send for order may have
// moved funds.
func (s *Service) settlementInFlight(ctx context.Context, order *models.Order) (bool, error) {
	if order.SettlementKey == "" {
		return false, nil
	}
	t, err := s.repo.GetTransfer(ctx, order.SettlementKey)
	if err != nil {
		return false, err
	}
	return t != nil && (t.Status == models.TransferInitiated || t.Status == models.TransferSent), nil
}

// MarkConfirming records that the admin saw the coins of a sell order arrive
// and the bank payout is under way.
func (s *Service) MarkConfirming(ctx context.Context, orderID uint) (*models.Order, error) {
	return s.transitionSell(ctx, orderID, []models.OrderStatus{models.OrderPending}, models.OrderConfirming, "")
}

// CompleteSell records the bank payout of a sell order.
func (s *Service) CompleteSell(ctx context.Context, orderID uint, message string) (*models.Order, error) {
	return s.transitionSell(ctx, orderID, []models.OrderStatus{models.OrderPending, models.OrderConfirming}, models.OrderCompleted, strings.TrimSpace(message))
}

func (s *Service) transitionSell(ctx context.Context, orderID uint, from []models.OrderStatus, to models.OrderStatus, message string) (*models.Order, error) {
	unlock := s.locks.Lock(orderLockKey(orderID))
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Type != models.OrderSell {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d is not a sell order", order.ID)
	}

	ok, err := s.repo.TransitionOrder(ctx, order.ID, from, to, message, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindInvalidState, "order %d is %s and cannot become %s", order.ID, order.Status, to)
	}

	order.Status = to
	if message != "" {
		order.Message = message
	}
	return order, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Order, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uint) ([]*models.Order, error) {
	orders, err := s.repo.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of user %d: %w", userID, err)
	}
	return orders, nil
}

// ListPending returns pending orders oldest first, the order admins work
// through them.
func (s *Service) ListPending(ctx context.Context) ([]*models.Order, error) {
	orders, err := s.repo.ListOrdersByStatus(ctx, models.OrderPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return orders, nil
}

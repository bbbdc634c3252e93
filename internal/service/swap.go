package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/swap"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const swapWaiting = "waiting"

type SwapInput struct {
	From   models.Coin     `json:"from"`
	To     models.Coin     `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	PIN    string          `json:"pin"`
}

func (s *Service) SwapRange(ctx context.Context, from, to models.Coin) (*swap.Range, error) {
	if err := checkPair(from, to); err != nil {
		return nil, err
	}
	return s.swaps.Ranges(ctx, from, to)
}

func checkPair(from, to models.Coin) error {
	if _, ok := models.ParseCoin(string(from)); !ok {
		return apperr.Newf(apperr.KindValidation, "unsupported coin %q", from)
	}
	if _, ok := models.ParseCoin(string(to)); !ok {
		return apperr.Newf(apperr.KindValidation, "unsupported coin %q", to)
	}
	if from == to {
		return apperr.New(apperr.KindValidation, "cannot swap a coin for itself")
	}
	return nil
}

// CreateSwap opens an exchange with the swap provider and pays it from the
// user's wallet. The received coins go to the user's own wallet.
func (s *Service) CreateSwap(ctx context.Context, userID uint, in SwapInput) (*models.Swap, error) {
	if err := checkPair(in.From, in.To); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPin(user, in.PIN); err != nil {
		return nil, err
	}

	rng, err := s.swaps.Ranges(ctx, in.From, in.To)
	if err != nil {
		return nil, err
	}
	if !rng.Contains(in.Amount) {
		return nil, apperr.Newf(apperr.KindValidation, "amount is outside the swap range starting at %s %s", rng.Min, in.From)
	}

	fromProvider, err := s.providers.Get(in.From)
	if err != nil {
		return nil, err
	}
	toProvider, err := s.providers.Get(in.To)
	if err != nil {
		return nil, err
	}
	receive, err := toProvider.CreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	ex, err := s.swaps.CreateExchange(ctx, swap.ExchangeRequest{
		From:      in.From,
		To:        in.To,
		Amount:    in.Amount,
		AddressTo: receive.Address,
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"user": userID,
		"swap": ex.ID,
		"from": in.From,
		"to":   in.To,
	})

	deposit := ex.ExpectedAmount
	if !deposit.IsPositive() {
		deposit = in.Amount
	}

	ref, err := fromProvider.Send(ctx, wallet.SendRequest{
		OwnerID:        userID,
		To:             ex.AddressFrom,
		Amount:         deposit,
		PIN:            in.PIN,
		IdempotencyKey: fmt.Sprintf("swap:%s", ex.ID),
	})
	if err != nil {
		log.Errorf("Swap deposit failed, exchange left unpaid: %v", err)
		return nil, err
	}

	record := &models.Swap{
		UserID:          userID,
		SwapID:          ex.ID,
		CoinSent:        in.From,
		AmountSent:      deposit,
		CoinRecieve:     in.To,
		AmountToRecieve: ex.AmountTo,
		DepositAddress:  ex.AddressFrom,
		TxRef:           ref,
		Status:          swapWaiting,
	}
	if err := s.repo.CreateSwap(ctx, record); err != nil {
		log.Errorf("Swap deposit %s went out but the swap was not recorded: %v", ref, err)
		return nil, err
	}

	log.Infof("🔁 Swap deposit sent: %s", ref)
	return record, nil
}

func (s *Service) ListSwaps(ctx context.Context, userID uint) ([]*models.Swap, error) {
	swaps, err := s.repo.ListSwaps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	return swaps, nil
}

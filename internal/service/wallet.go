package service

import (
	"context"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/shopspring/decimal"
)

func (s *Service) GenerateWallet(ctx context.Context, userID uint, coin models.Coin) (*models.Wallet, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	p, err := s.providers.Get(coin)
	if err != nil {
		return nil, err
	}
	return p.CreateWallet(ctx, userID)
}

func (s *Service) Address(ctx context.Context, userID uint, coin models.Coin) (string, error) {
	p, err := s.providers.Get(coin)
	if err != nil {
		return "", err
	}
	return p.GetAddress(ctx, userID)
}

func (s *Service) Balance(ctx context.Context, userID uint, coin models.Coin) (decimal.Decimal, error) {
	p, err := s.providers.Get(coin)
	if err != nil {
		return decimal.Zero, err
	}
	return p.GetBalance(ctx, userID)
}

// Transactions lists the wallet history. Listing also records receive
// notifications and may trigger the referral payout.
func (s *Service) Transactions(ctx context.Context, userID uint, coin models.Coin) ([]models.Transaction, error) {
	p, err := s.providers.Get(coin)
	if err != nil {
		return nil, err
	}
	return p.ListTransactions(ctx, userID)
}

func (s *Service) ValidateAddress(coin models.Coin, address string) (bool, error) {
	p, err := s.providers.Get(coin)
	if err != nil {
		return false, err
	}
	return p.IsValidAddress(address), nil
}

// FeeEstimate splits the cost of a send into the chain fee and the
// exchange's own fee.
type FeeEstimate struct {
	NetworkFee decimal.Decimal `json:"network_fee"`
	ServiceFee decimal.Decimal `json:"service_fee"`
}

func (s *Service) EstimateFee(ctx context.Context, userID uint, coin models.Coin, to string, amount decimal.Decimal) (*FeeEstimate, error) {
	p, err := s.providers.Get(coin)
	if err != nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	network, err := p.EstimateFee(ctx, userID, to, amount)
	if err != nil {
		return nil, err
	}
	service, err := s.serviceFee(ctx, user, coin)
	if err != nil {
		return nil, err
	}
	return &FeeEstimate{NetworkFee: network, ServiceFee: service}, nil
}

func (s *Service) serviceFee(ctx context.Context, user *models.User, coin models.Coin) (decimal.Decimal, error) {
	if user.IsAdmin {
		return decimal.Zero, nil
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.Fee(coin), nil
}

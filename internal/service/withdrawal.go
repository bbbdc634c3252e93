package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type SendInput struct {
	Coin   models.Coin     `json:"-"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	PIN    string          `json:"pin"`
	// IdempotencyKey lets the client retry a send safely. Empty means a new send.
	IdempotencyKey string `json:"-"`
}

type SendResult struct {
	TxRef    string          `json:"tx_ref"`
	Fee      decimal.Decimal `json:"fee"`
	FeeTxRef string          `json:"fee_tx_ref,omitempty"`
}

// Send withdraws coins from the user's wallet to an outside address. A
// non-admin pays the configured fee to the treasury first; each leg carries
// its own idempotency key derived from the request key.
func (s *Service) Send(ctx context.Context, userID uint, in SendInput) (*SendResult, error) {
	p, err := s.providers.Get(in.Coin)
	if err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount must be positive")
	}
	if !p.IsValidAddress(in.To) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid %s address", in.Coin)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	fee, err := s.serviceFee(ctx, user, in.Coin)
	if err != nil {
		return nil, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	key = fmt.Sprintf("send:%d:%s", userID, key)

	log := s.logger.WithFields(logrus.Fields{
		"user": userID,
		"coin": in.Coin,
		"key":  key,
	})

	// A retried key replays the journaled legs. The fee charged the first
	// time wins over the current setting.
	feeLeg, err := s.repo.GetTransfer(ctx, key+":fee")
	if err != nil {
		return nil, err
	}
	mainLeg, err := s.repo.GetTransfer(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case feeLeg != nil:
		fee = feeLeg.Amount
	case mainLeg != nil:
		fee = decimal.Zero
	}
	retry := isSent(feeLeg) || isSent(mainLeg)

	res := &SendResult{Fee: fee}

	if fee.IsPositive() {
		var treasuryAddr string
		if feeLeg != nil {
			treasuryAddr = feeLeg.To
		} else if treasuryAddr, err = s.treasuryAddress(ctx, p); err != nil {
			return nil, err
		}

		if !retry {
			balance, err := p.GetBalance(ctx, userID)
			if err != nil {
				return nil, err
			}
			if balance.LessThan(in.Amount.Add(fee)) {
				return nil, apperr.Newf(apperr.KindInsufficientFunds, "insufficient %s balance for amount plus fee", in.Coin)
			}
		}

		res.FeeTxRef, err = p.Send(ctx, wallet.SendRequest{
			OwnerID:        userID,
			To:             treasuryAddr,
			Amount:         fee,
			PIN:            in.PIN,
			IdempotencyKey: key + ":fee",
		})
		if err != nil {
			log.Errorf("Fee transfer failed: %v", err)
			return nil, err
		}
	}

	res.TxRef, err = p.Send(ctx, wallet.SendRequest{
		OwnerID:        userID,
		To:             in.To,
		Amount:         in.Amount,
		PIN:            in.PIN,
		IdempotencyKey: key,
	})
	if err != nil {
		if res.FeeTxRef != "" {
			log.Warnf("Withdrawal failed after fee %s was collected: %v", res.FeeTxRef, err)
		}
		return nil, err
	}

	return res, nil
}

func isSent(t *models.Transfer) bool {
	return t != nil && t.Status == models.TransferSent
}

// treasuryAddress resolves the treasury admin's address for p's coin.
func (s *Service) treasuryAddress(ctx context.Context, p wallet.CoinWalletProvider) (string, error) {
	admin, err := s.repo.GetTreasuryAdmin(ctx)
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", apperr.New(apperr.KindWalletMissing, "no treasury admin")
	}
	addr, err := p.GetAddress(ctx, admin.ID)
	if err != nil {
		if wallet.IsNoWallet(err) {
			return "", apperr.Newf(apperr.KindWalletMissing, "treasury has no %s wallet", p.Coin())
		}
		return "", err
	}
	return addr, nil
}

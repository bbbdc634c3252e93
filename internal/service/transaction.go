package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/sirupsen/logrus"
)

// HandleReceive is installed as the wallet providers' receive hook. Every
// receive is recorded once per transaction hash and pushed to the owner; the
// newest one is offered to the referral payout rule.
func (s *Service) HandleReceive(ctx context.Context, w *models.Wallet, received []models.Transaction) {
	log := s.logger.WithFields(logrus.Fields{
		"user": w.UserID,
		"coin": w.Coin,
	})

	fresh := 0
	for _, tx := range received {
		if tx.Hash == "" {
			continue
		}
		created, err := s.notifications.Notify(ctx, &models.Notification{
			UserID:          w.UserID,
			From:            tx.Address,
			To:              w.Address,
			Amount:          tx.Amount,
			Coin:            w.Coin,
			TransactionHash: tx.Hash,
		}, fmt.Sprintf("You've Received %s %s", tx.Amount.StringFixed(w.Coin.Precision()), w.Coin))
		if err != nil {
			log.Errorf("Failed to record receive %s: %v", tx.Hash, err)
			continue
		}
		if created {
			fresh++
		}
	}
	if fresh > 0 {
		log.Infof("📥 %d new receives recorded", fresh)
	}

	newest := received[0]
	res, err := s.referral.Payout(ctx, referral.Input{
		UserID: w.UserID,
		Amount: newest.Amount,
		Coin:   w.Coin,
		Source: referral.SourceReceive,
	})
	if err != nil {
		log.Errorf("Referral payout on receive failed: %v", err)
		return
	}
	if res.Skipped == "" {
		log.Infof("🎁 Referral payout %s sent to user #%d", res.Payout, res.ReferrerID)
	}
}

// ScanReferralReceives lists the wallets of every referred user whose
// referrer is still unpaid, which records their receives and runs the
// referral rule on them.
func (s *Service) ScanReferralReceives(ctx context.Context) error {
	users, err := s.repo.ListUnpaidReferredUsers(ctx)
	if err != nil {
		s.logger.Errorf("Receive scan failed: %v", err)
		return err
	}

	for _, u := range users {
		for _, p := range s.providers.All() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := p.ListTransactions(ctx, u.ID); err != nil {
				if errors.Is(err, apperr.ErrNoWallet) {
					continue
				}
				s.logger.Warnf("Receive scan of user #%d %s failed: %v", u.ID, p.Coin(), err)
			}
		}
	}
	return nil
}

package service

import (
	"context"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
)

// ListReferralPayouts lists the payout ledger for the operator. Rows in failed or
// unknown state were claimed but not confirmed paid and need a manual look.
func (s *Service) ListReferralPayouts(ctx context.Context, status models.ReferralPayoutStatus) ([]*models.ReferralPayout, error) {
	switch status {
	case "", models.PayoutPaid, models.PayoutFailed, models.PayoutUnknown:
	default:
		return nil, apperr.Newf(apperr.KindValidation, "unknown payout status %q", status)
	}
	return s.repo.ListAllReferralPayouts(ctx, status)
}

// MyReferralPayouts lists the bonuses earned through the user's referral code.
func (s *Service) MyReferralPayouts(ctx context.Context, userID uint) ([]*models.ReferralPayout, error) {
	return s.repo.ListReferralPayouts(ctx, userID)
}

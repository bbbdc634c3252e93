package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	SourceSettlement = "settlement"
	SourceReceive    = "receive"
)

type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	GetTreasuryAdmin(ctx context.Context) (*models.User, error)
	ClaimReferrerPaid(ctx context.Context, userID uint) (bool, error)
	CreateReferralPayout(ctx context.Context, payout *models.ReferralPayout) error
}

type Providers interface {
	Get(coin models.Coin) (wallet.CoinWalletProvider, error)
}

type SettingsSource interface {
	Settings(ctx context.Context) (*models.Settings, error)
}

// Input describes the funds movement that may trigger a payout. AdminID 0
// means the treasury admin pays.
type Input struct {
	UserID  uint
	Amount  decimal.Decimal
	Coin    models.Coin
	AdminID uint
	Source  string
}

// Result says what the rule did. Skipped is set when nothing was sent.
type Result struct {
	Skipped    string
	ReferrerID uint
	Payout     decimal.Decimal
	TxRef      string
}

func skipped(reason string) *Result {
	return &Result{Skipped: reason}
}

type Rule struct {
	store     Store
	providers Providers
	settings  SettingsSource
	logger    *utils.Logger
}

func NewRule(store Store, providers Providers, settings SettingsSource, logger *utils.Logger) *Rule {
	return &Rule{store: store, providers: providers, settings: settings, logger: logger}
}

// Payout pays the referrer of in.UserID a percentage of in.Amount, once per
// referred user. The referred user's flag is claimed with a conditional
// update before any funds move, so concurrent callers send at most once.
func (r *Rule) Payout(ctx context.Context, in Input) (*Result, error) {
	settings, err := r.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.ReferralActive {
		return skipped("referrals disabled"), nil
	}

	user, err := r.store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return skipped("user not found"), nil
	}
	if user.ReferrerPaid {
		return skipped("already paid"), nil
	}
	if user.ReferrerID == "" {
		return skipped("no referrer"), nil
	}

	referrer, err := r.store.GetUserByReferralCode(ctx, user.ReferrerID)
	if err != nil {
		return nil, err
	}
	if referrer == nil || referrer.ID == user.ID {
		return skipped("referrer not found"), nil
	}

	payout := utils.Percent(in.Amount, settings.ReferralPercentage, in.Coin.Precision())
	if !payout.IsPositive() {
		return skipped("zero payout"), nil
	}

	adminID := in.AdminID
	if adminID == 0 {
		admin, err := r.store.GetTreasuryAdmin(ctx)
		if err != nil {
			return nil, err
		}
		if admin == nil {
			return nil, apperr.New(apperr.KindWalletMissing, "no treasury admin")
		}
		adminID = admin.ID
	}

	provider, err := r.providers.Get(in.Coin)
	if err != nil {
		return nil, err
	}

	log := r.logger.WithFields(logrus.Fields{
		"user":     user.ID,
		"referrer": referrer.ID,
		"coin":     in.Coin,
		"payout":   payout.String(),
		"source":   in.Source,
	})

	referrerAddr, err := provider.GetAddress(ctx, referrer.ID)
	if err != nil {
		if wallet.IsNoWallet(err) {
			return nil, apperr.Wrap(apperr.KindWalletMissing, fmt.Sprintf("referrer has no %s wallet", in.Coin), err)
		}
		return nil, err
	}

	balance, err := provider.GetBalance(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(payout) {
		log.Warnf("Treasury %s balance %s below referral payout, skipping", in.Coin, balance)
		return skipped("insufficient treasury balance"), nil
	}

	claimed, err := r.store.ClaimReferrerPaid(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return skipped("already paid"), nil
	}

	record := &models.ReferralPayout{
		ReferredUserID: user.ID,
		ReferrerUserID: referrer.ID,
		Coin:           in.Coin,
		Amount:         payout,
		Source:         in.Source,
	}

	ref, sendErr := provider.Send(ctx, wallet.SendRequest{
		OwnerID:         adminID,
		To:              referrerAddr,
		Amount:          payout,
		SystemInitiated: true,
		IdempotencyKey:  fmt.Sprintf("referral:%d", user.ID),
	})

	switch {
	case sendErr == nil:
		record.Status = models.PayoutPaid
		record.TxRef = ref
	case errors.Is(sendErr, apperr.ErrTimeout):
		record.Status = models.PayoutUnknown
		record.Error = sendErr.Error()
	default:
		record.Status = models.PayoutFailed
		record.Error = sendErr.Error()
	}

	if err := r.store.CreateReferralPayout(ctx, record); err != nil {
		log.Errorf("Failed to record referral payout: %v", err)
	}

	if sendErr != nil {
		log.Errorf("Referral payout send failed after claim: %v", sendErr)
		return nil, sendErr
	}

	log.Infof("🎁 Referral payout sent: %s", ref)
	return &Result{ReferrerID: referrer.ID, Payout: payout, TxRef: ref}, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/config"
	"github.com/Fi44er/coin_exchange/internal/apperr"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/utils"
	"github.com/shopspring/decimal"
)

type SettingsRepository interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}

// SettingsStore serves the runtime-tunable settings row. It satisfies
// referral.SettingsSource.
type SettingsStore struct {
	repo   SettingsRepository
	logger *utils.Logger
}

func NewSettingsStore(repo SettingsRepository, logger *utils.Logger) *SettingsStore {
	return &SettingsStore{repo: repo, logger: logger}
}

// Settings returns the stored row, or zero settings (referrals off, no fees)
// when it has not been seeded.
func (s *SettingsStore) Settings(ctx context.Context) (*models.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &models.Settings{}, nil
	}
	return settings, nil
}

// Ensure seeds the settings row from cfg unless it already exists.
func (s *SettingsStore) Ensure(ctx context.Context, cfg *config.Config) error {
	existing, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	seed := &models.Settings{
		ReferralActive:     cfg.ReferralActive,
		ReferralPercentage: decimal.NewFromFloat(cfg.ReferralPercentage),
		BankName:           cfg.BankName,
		AccountNumber:      cfg.AccountNumber,
		AccountHolderName:  cfg.AccountHolderName,
	}

	for _, f := range []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"BTC_FEE", cfg.BTCFee, &seed.BTCFee},
		{"ETH_FEE", cfg.ETHFee, &seed.ETHFee},
		{"USDT_FEE", cfg.USDTFee, &seed.USDTFee},
		{"MIN_BUY_USD", cfg.MinBuyUSD, &seed.MinBuyUSD},
		{"MIN_BUY_NGN", cfg.MinBuyNGN, &seed.MinBuyNGN},
	} {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.key, err)
		}
		*f.dst = v
	}

	if err := validateSettings(seed); err != nil {
		return fmt.Errorf("invalid settings seed: %w", err)
	}
	if err := s.repo.SaveSettings(ctx, seed); err != nil {
		return err
	}

	s.logger.Infof("⚙️ Settings seeded (referrals active: %t, %s%%)", seed.ReferralActive, seed.ReferralPercentage)
	return nil
}

// SettingsPatch carries the fields to change. Nil fields are left as they are.
type SettingsPatch struct {
	ReferralActive     *bool            `json:"referral_active"`
	ReferralPercentage *decimal.Decimal `json:"referral_percentage"`
	BTCFee             *decimal.Decimal `json:"btc_fee"`
	ETHFee             *decimal.Decimal `json:"eth_fee"`
	USDTFee            *decimal.Decimal `json:"usdt_fee"`
	MinBuyUSD          *decimal.Decimal `json:"min_buy_usd"`
	MinBuyNGN          *decimal.Decimal `json:"min_buy_ngn"`
	BankName           *string          `json:"bank_name"`
	AccountNumber      *string          `json:"account_number"`
	AccountHolderName  *string          `json:"account_holder_name"`
}

func (s *SettingsStore) Update(ctx context.Context, patch SettingsPatch) (*models.Settings, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	if patch.ReferralActive != nil {
		settings.ReferralActive = *patch.ReferralActive
	}
	setDecimal(&settings.ReferralPercentage, patch.ReferralPercentage)
	setDecimal(&settings.BTCFee, patch.BTCFee)
	setDecimal(&settings.ETHFee, patch.ETHFee)
	setDecimal(&settings.USDTFee, patch.USDTFee)
	setDecimal(&settings.MinBuyUSD, patch.MinBuyUSD)
	setDecimal(&settings.MinBuyNGN, patch.MinBuyNGN)
	setString(&settings.BankName, patch.BankName)
	setString(&settings.AccountNumber, patch.AccountNumber)
	setString(&settings.AccountHolderName, patch.AccountHolderName)

	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	s.logger.Infof("⚙️ Settings updated")
	return settings, nil
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func validateSettings(s *models.Settings) error {
	if s.ReferralPercentage.IsNegative() || s.ReferralPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return apperr.New(apperr.KindValidation, "referral percentage must be between 0 and 100")
	}
	for name, v := range map[string]decimal.Decimal{
		"btc_fee":     s.BTCFee,
		"eth_fee":     s.ETHFee,
		"usdt_fee":    s.USDTFee,
		"min_buy_usd": s.MinBuyUSD,
		"min_buy_ngn": s.MinBuyNGN,
	} {
		if v.IsNegative() {
			return apperr.Newf(apperr.KindValidation, "%s must not be negative", name)
		}
	}
	return nil
}

// PublicSettings is what any signed-in user may see: where to pay and what
// it costs.
type PublicSettings struct {
	ReferralActive     bool            `json:"referral_active"`
	ReferralPercentage decimal.Decimal `json:"referral_percentage"`
	BTCFee             decimal.Decimal `json:"btc_fee"`
	ETHFee             decimal.Decimal `json:"eth_fee"`
	USDTFee            decimal.Decimal `json:"usdt_fee"`
	MinBuyUSD          decimal.Decimal `json:"min_buy_usd"`
	MinBuyNGN          decimal.Decimal `json:"min_buy_ngn"`
	BankName           string          `json:"bank_name"`
	AccountNumber      string          `json:"account_number"`
	AccountHolderName  string          `json:"account_holder_name"`
}

func (s *SettingsStore) Public(ctx context.Context) (*PublicSettings, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicSettings{
		ReferralActive:     st.ReferralActive,
		ReferralPercentage: st.ReferralPercentage,
		BTCFee:             st.BTCFee,
		ETHFee:             st.ETHFee,
		USDTFee:            st.USDTFee,
		MinBuyUSD:          st.MinBuyUSD,
		MinBuyNGN:          st.MinBuyNGN,
		BankName:           st.BankName,
		AccountNumber:      st.AccountNumber,
		AccountHolderName:  st.AccountHolderName,
	}, nil
}

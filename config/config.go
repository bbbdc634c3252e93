package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB_URL   string `mapstructure:"DB_URL"`
	Migrate  bool   `mapstructure:"MIGRATE"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	// ChainMode is "live" for real wallet services and nodes, "sandbox" for the
	// in-memory ledger.
	ChainMode    string `mapstructure:"CHAIN_MODE"`
	SandboxFunds string `mapstructure:"SANDBOX_FUNDS"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	BTCNetwork     string `mapstructure:"BTC_NETWORK"`
	BTCWalletURL   string `mapstructure:"BTC_WALLET_URL"`
	BTCWalletToken string `mapstructure:"BTC_WALLET_TOKEN"`
	BTCEnterprise  string `mapstructure:"BTC_ENTERPRISE"`

	ETHRPCURL      string `mapstructure:"ETH_RPC_URL"`
	USDTContract   string `mapstructure:"USDT_CONTRACT"`
	USDTDecimals   int32  `mapstructure:"USDT_DECIMALS"`
	ExplorerURL    string `mapstructure:"EXPLORER_URL"`
	ExplorerAPIKey string `mapstructure:"EXPLORER_API_KEY"`

	CMCURL        string        `mapstructure:"CMC_URL"`
	CMCAPIKey     string        `mapstructure:"CMC_API_KEY"`
	PriceCacheTTL time.Duration `mapstructure:"PRICE_CACHE_TTL"`

	SwapURL    string `mapstructure:"SWAP_URL"`
	SwapAPIKey string `mapstructure:"SWAP_API_KEY"`

	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	OracleTimeout   time.Duration `mapstructure:"ORACLE_TIMEOUT"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `mapstructure:"ADMIN_CHAT_ID"`

	ReconcileInterval   time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReceiveScanInterval time.Duration `mapstructure:"RECEIVE_SCAN_INTERVAL"`

	// Seeds for the settings row, applied only when the row does not exist yet.
	ReferralActive     bool    `mapstructure:"REFERRAL_ACTIVE"`
	ReferralPercentage float64 `mapstructure:"REFERRAL_PERCENTAGE"`
	BTCFee             string  `mapstructure:"BTC_FEE"`
	ETHFee             string  `mapstructure:"ETH_FEE"`
	USDTFee            string  `mapstructure:"USDT_FEE"`
	MinBuyUSD          string  `mapstructure:"MIN_BUY_USD"`
	MinBuyNGN          string  `mapstructure:"MIN_BUY_NGN"`
	BankName           string  `mapstructure:"BANK_NAME"`
	AccountNumber      string  `mapstructure:"ACCOUNT_NUMBER"`
	AccountHolderName  string  `mapstructure:"ACCOUNT_HOLDER_NAME"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MIGRATE", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("JWT_TTL", 24*time.Hour)
	v.SetDefault("CHAIN_MODE", "live")
	v.SetDefault("SANDBOX_FUNDS", "0")
	v.SetDefault("BTC_NETWORK", "mainnet")
	v.SetDefault("USDT_CONTRACT", "0xdAC17F958D2ee523a2206206994597C13D831ec7")
	v.SetDefault("USDT_DECIMALS", 6)
	v.SetDefault("EXPLORER_URL", "https://api.etherscan.io/api")
	v.SetDefault("CMC_URL", "https://pro-api.coinmarketcap.com")
	v.SetDefault("PRICE_CACHE_TTL", time.Minute)
	v.SetDefault("SWAP_URL", "https://api.simpleswap.io")
	v.SetDefault("PROVIDER_TIMEOUT", 30*time.Second)
	v.SetDefault("ORACLE_TIMEOUT", 10*time.Second)
	v.SetDefault("RECONCILE_INTERVAL", 5*time.Minute)
	v.SetDefault("RECEIVE_SCAN_INTERVAL", 10*time.Minute)
	v.SetDefault("REFERRAL_ACTIVE", false)
	v.SetDefault("REFERRAL_PERCENTAGE", 0)
	v.SetDefault("BTC_FEE", "0")
	v.SetDefault("ETH_FEE", "0")
	v.SetDefault("USDT_FEE", "0")
	v.SetDefault("MIN_BUY_USD", "0")
	v.SetDefault("MIN_BUY_NGN", "0")
}

// LoadConfig reads an env-style file at path and lets the process environment
// override it. A missing file is not an error.
func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{
		"DB_URL", "JWT_SECRET", "ADMIN_EMAIL", "ADMIN_PASSWORD", "BTC_WALLET_URL", "BTC_WALLET_TOKEN", "BTC_ENTERPRISE",
		"ETH_RPC_URL", "EXPLORER_API_KEY", "CMC_API_KEY", "SWAP_API_KEY",
		"TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID", "BANK_NAME", "ACCOUNT_NUMBER", "ACCOUNT_HOLDER_NAME",
	} {
		if err := v.BindEnv(key); err != nil {
			return config, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	if config.JWTSecret == "" {
		return config, errors.New("JWT_SECRET is required")
	}

	if config.ChainMode != "live" && config.ChainMode != "sandbox" {
		return config, fmt.Errorf("CHAIN_MODE must be live or sandbox, got %q", config.ChainMode)
	}

	return config, nil
}

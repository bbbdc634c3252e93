package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/coin_exchange/config"
	"github.com/Fi44er/coin_exchange/db"
	"github.com/Fi44er/coin_exchange/internal/api"
	"github.com/Fi44er/coin_exchange/internal/bot"
	"github.com/Fi44er/coin_exchange/internal/chain/btc"
	"github.com/Fi44er/coin_exchange/internal/chain/eth"
	"github.com/Fi44er/coin_exchange/internal/chain/sandbox"
	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/price"
	"github.com/Fi44er/coin_exchange/internal/realtime"
	"github.com/Fi44er/coin_exchange/internal/referral"
	"github.com/Fi44er/coin_exchange/internal/repository"
	"github.com/Fi44er/coin_exchange/internal/repository/memory"
	"github.com/Fi44er/coin_exchange/internal/scheduler"
	"github.com/Fi44er/coin_exchange/internal/service"
	"github.com/Fi44er/coin_exchange/internal/settlement"
	"github.com/Fi44er/coin_exchange/internal/swap"
	"github.com/Fi44er/coin_exchange/internal/wallet"
	"github.com/Fi44er/coin_exchange/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// storage is everything the components need from persistence. Both the
// postgres repository and the in-memory store provide it.
type storage interface {
	service.Repository
	service.SettingsRepository
	service.NotificationRepository
	wallet.Store
	referral.Store
}

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig("app.env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStorage(&cfg, logger)

	chains, ledger := buildChains(ctx, &cfg, logger)

	locks := utils.NewKeyedMutex()
	var providers []*wallet.Provider
	var list []wallet.CoinWalletProvider
	for _, chain := range chains {
		p := wallet.NewProvider(chain, store, locks, cfg.ProviderTimeout, logger)
		providers = append(providers, p)
		list = append(list, p)
	}
	registry := wallet.NewRegistry(list...)

	settings := service.NewSettingsStore(store, logger)
	if err := settings.Ensure(ctx, &cfg); err != nil {
		logger.Fatal("Failed to seed settings: ", err)
	}

	hub := realtime.NewHub()
	sink := service.NewNotificationSink(store, hub, logger)
	rule := referral.NewRule(store, registry, settings, logger)
	engine := settlement.NewEngine(registry, sink, rule, logger)

	svc := service.NewService(store, service.Deps{
		Providers:     registry,
		Prices:        price.NewOracle(cfg.CMCURL, cfg.CMCAPIKey, cfg.OracleTimeout, cfg.PriceCacheTTL, logger),
		Swaps:         swap.NewClient(cfg.SwapURL, cfg.SwapAPIKey, cfg.ProviderTimeout),
		Engine:        engine,
		Referral:      rule,
		Notifications: sink,
		Settings:      settings,
		Locks:         locks,
	}, &cfg, logger)
	for _, p := range providers {
		p.OnReceive(svc.HandleReceive)
	}

	admin, err := svc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		logger.Fatal("Failed to ensure admin: ", err)
	}
	if ledger != nil && admin != nil {
		fundSandboxAdmin(ctx, svc, ledger, admin, cfg.SandboxFunds, logger)
	}

	if cfg.TelegramBotToken != "" {
		client := &http.Client{Timeout: bot.PollTimeout + cfg.ProviderTimeout}
		tg, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, client)
		if err != nil {
			logger.Fatal("Failed to create bot API: ", err)
		}
		adminBot := bot.NewBot(tg, svc, cfg.AdminChatID, logger)
		svc.SetAlerter(adminBot)
		go adminBot.Start(ctx)
	} else {
		logger.Warn("⚠️ TELEGRAM_BOT_TOKEN is empty, admin alerts are disabled")
	}

	sched, err := scheduler.New(logger,
		scheduler.Job{Name: "reconcile", Interval: cfg.ReconcileInterval, Run: svc.ReconcileSweep},
		scheduler.Job{Name: "referral-receive-scan", Interval: cfg.ReceiveScanInterval, Run: svc.ScanReferralReceives},
	)
	if err != nil {
		logger.Fatal(err)
	}
	sched.Start()

	handler := api.NewHandler(svc, hub, api.NewTokens(cfg.JWTSecret, cfg.JWTTTL), logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("🚀 Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: ", err)
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Errorf("Scheduler shutdown: %v", err)
	}
}

func openStorage(cfg *config.Config, logger *utils.Logger) storage {
	if cfg.DB_URL == "" {
		logger.Warn("⚠️ DB_URL is empty, using the in-memory store")
		return memory.NewStore()
	}

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.Migrate(database, cfg.Migrate, logger); err != nil {
		logger.Fatal(err)
	}
	return repository.NewRepository(database, logger)
}

// buildChains returns one backend per coin. In sandbox mode the ledger backing
// them is returned too.
func buildChains(ctx context.Context, cfg *config.Config, logger *utils.Logger) ([]wallet.Chain, *sandbox.Ledger) {
	params, err := btc.NetParams(cfg.BTCNetwork)
	if err != nil {
		logger.Fatal(err)
	}

	if cfg.ChainMode == "sandbox" {
		logger.Warn("🧪 CHAIN_MODE=sandbox, balances live in memory")
		ledger := sandbox.NewLedger(params)
		var chains []wallet.Chain
		for _, c := range models.Coins {
			chains = append(chains, ledger.Chain(c))
		}
		return chains, ledger
	}

	btcClient := btc.NewClient(cfg.BTCWalletURL, cfg.BTCWalletToken, btc.WalletCoin(params), cfg.ProviderTimeout)

	ethClient, err := eth.Dial(ctx, cfg.ETHRPCURL)
	if err != nil {
		logger.Fatal(err)
	}
	explorer := eth.NewExplorer(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.ProviderTimeout)

	return []wallet.Chain{
		btc.NewChain(btcClient, params, cfg.BTCEnterprise),
		eth.NewNative(ethClient, explorer),
		eth.NewToken(models.CoinUSDT, ethClient, explorer, cfg.USDTContract, cfg.USDTDecimals),
	}, nil
}

func fundSandboxAdmin(ctx context.Context, svc *service.Service, ledger *sandbox.Ledger, admin *models.User, raw string, logger *utils.Logger) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		logger.Fatal("Invalid SANDBOX_FUNDS: ", err)
	}
	if !amount.IsPositive() {
		return
	}
	for _, c := range models.Coins {
		addr, err := svc.Address(ctx, admin.ID, c)
		if err != nil {
			logger.Errorf("Sandbox funding of %s skipped: %v", c, err)
			continue
		}
		if ledger.BalanceOf(c, addr).IsPositive() {
			continue
		}
		ledger.Fund(c, addr, amount)
		logger.Infof("🧪 Funded admin %s wallet with %s", c, amount)
	}
}

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vcoin-labs/vcoin/internal/cache"
	vcron "github.com/vcoin-labs/vcoin/internal/cron"
	"github.com/vcoin-labs/vcoin/internal/httpapi"
	"github.com/vcoin-labs/vcoin/internal/store/gormstore"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagRedisAddr          = "redis-addr"
	flagRedisPassword      = "redis-password"
	flagTokenSigningKey    = "token-signing-key"
	flagTokenIssuer        = "token-issuer"
	flagAllowedOrigins     = "allowed-origins"
	flagMonthlyEmission    = "monthly-emission"
	flagVCNPriceUSD        = "vcn-price-usd"
	flagMaxDailyRewardUSD  = "max-daily-reward-usd"
	flagTransactionFeeRate = "transaction-fee-rate"

	configKeyDatabaseURL        = "database_url"
	configKeyListenAddr         = "listen_addr"
	configKeyRedisAddr          = "redis_addr"
	configKeyRedisPassword      = "redis_password"
	configKeyTokenSigningKey    = "token_signing_key"
	configKeyTokenIssuer        = "token_issuer"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeyMonthlyEmission    = "monthly_emission"
	configKeyVCNPriceUSD        = "vcn_price_usd"
	configKeyMaxDailyRewardUSD  = "max_daily_reward_usd"
	configKeyTransactionFeeRate = "transaction_fee_rate"

	defaultDatabaseURL = "sqlite:///tmp/vcoin.db"
	defaultListenAddr  = ":9090"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	RedisAddr       string
	RedisPassword   string
	TokenSigningKey string
	TokenIssuer     string
	AllowedOrigins  []string
	Economy         vcoin.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vcoind: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "vcoind",
		Short:         "VCoin token-economy server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRedisAddr, "", "Redis address for balance-cache invalidation (empty disables)")
	cmd.Flags().String(flagRedisPassword, "", "Redis password")
	cmd.Flags().String(flagTokenSigningKey, "", "HMAC key for bearer token verification")
	cmd.Flags().String(flagTokenIssuer, "vcoin", "Expected bearer token issuer")
	cmd.Flags().StringSlice(flagAllowedOrigins, nil, "Allowed CORS origins")
	cmd.Flags().Int64(flagMonthlyEmission, 0, "Override monthly VCN emission")
	cmd.Flags().Float64(flagVCNPriceUSD, 0, "Override VCN price in USD")
	cmd.Flags().Float64(flagMaxDailyRewardUSD, -1, "Override per-user daily reward ceiling in USD")
	cmd.Flags().Float64(flagTransactionFeeRate, -1, "Override transfer fee rate")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:        "DATABASE_URL",
		configKeyListenAddr:         "LISTEN_ADDR",
		configKeyRedisAddr:          "REDIS_ADDR",
		configKeyRedisPassword:      "REDIS_PASSWORD",
		configKeyTokenSigningKey:    "TOKEN_SIGNING_KEY",
		configKeyTokenIssuer:        "TOKEN_ISSUER",
		configKeyAllowedOrigins:     "ALLOWED_ORIGINS",
		configKeyMonthlyEmission:    "MONTHLY_EMISSION",
		configKeyVCNPriceUSD:        "VCN_PRICE_USD",
		configKeyMaxDailyRewardUSD:  "MAX_DAILY_REWARD_USD",
		configKeyTransactionFeeRate: "TRANSACTION_FEE_RATE",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}
	flagBindings := map[string]string{
		configKeyDatabaseURL:        flagDatabaseURL,
		configKeyListenAddr:         flagListenAddr,
		configKeyRedisAddr:          flagRedisAddr,
		configKeyRedisPassword:      flagRedisPassword,
		configKeyTokenSigningKey:    flagTokenSigningKey,
		configKeyTokenIssuer:        flagTokenIssuer,
		configKeyAllowedOrigins:     flagAllowedOrigins,
		configKeyMonthlyEmission:    flagMonthlyEmission,
		configKeyVCNPriceUSD:        flagVCNPriceUSD,
		configKeyMaxDailyRewardUSD:  flagMaxDailyRewardUSD,
		configKeyTransactionFeeRate: flagTransactionFeeRate,
	}
	for configKey, flagName := range flagBindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	cfg.RedisPassword = viper.GetString(configKeyRedisPassword)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyAllowedOrigins)

	cfg.Economy = vcoin.DefaultConfig()
	if override := viper.GetInt64(configKeyMonthlyEmission); override > 0 {
		cfg.Economy.MonthlyEmission = override
	}
	if override := viper.GetFloat64(configKeyVCNPriceUSD); override > 0 {
		cfg.Economy.VCNPriceUSD = override
	}
	if override := viper.GetFloat64(configKeyMaxDailyRewardUSD); override >= 0 {
		cfg.Economy.MaxDailyRewardUSD = override
	}
	if override := viper.GetFloat64(configKeyTransactionFeeRate); override >= 0 {
		cfg.Economy.TransactionFeeRate = override
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return cfg.Economy.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() time.Time { return time.Now().UTC() }
	operationLogger := vcoin.NewZapOperationLogger(logger)

	ledgerOptions := []vcoin.LedgerOption{vcoin.WithOperationLogger(operationLogger)}
	stakingOptions := []vcoin.StakingOption{vcoin.WithStakingOperationLogger(operationLogger)}
	rewardOptions := []vcoin.RewardOption{vcoin.WithRewardOperationLogger(operationLogger)}

	if cfg.RedisAddr != "" {
		invalidator, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer func() { _ = invalidator.Close() }()
		ledgerOptions = append(ledgerOptions, vcoin.WithCacheInvalidator(invalidator))
		stakingOptions = append(stakingOptions, vcoin.WithStakingCacheInvalidator(invalidator))
		rewardOptions = append(rewardOptions, vcoin.WithRewardCacheInvalidator(invalidator))
	}

	ledger, err := vcoin.NewLedger(store, clock, cfg.Economy, ledgerOptions...)
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	staking, err := vcoin.NewStakingEngine(store, clock, cfg.Economy, stakingOptions...)
	if err != nil {
		return fmt.Errorf("staking init: %w", err)
	}
	rewards, err := vcoin.NewRewardService(store, clock, cfg.Economy, rewardOptions...)
	if err != nil {
		return fmt.Errorf("rewards init: %w", err)
	}

	cronManager := vcron.NewManager(vcron.NewEmissionJob(store, cfg.Economy, clock, logger))
	if err := cronManager.Start(); err != nil {
		return fmt.Errorf("cron init: %w", err)
	}
	defer cronManager.Stop()

	apiConfig := httpapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  cfg.AllowedOrigins,
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}
	if err := apiConfig.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	return httpapi.Run(ctx, apiConfig, httpapi.Services{
		Ledger:  ledger,
		Rewards: rewards,
		Staking: staking,
		Tiers:   vcoin.NewVerificationTierService(cfg.Economy),
		Store:   store,
		Economy: cfg.Economy,
	}, logger)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "vcoin.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

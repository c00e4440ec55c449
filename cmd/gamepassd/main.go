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

	"github.com/MazePlayLabs/gamepass/internal/httpapi"
	"github.com/MazePlayLabs/gamepass/internal/minter"
	"github.com/MazePlayLabs/gamepass/internal/store/gormstore"
	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagOwner           = "owner"
	flagPaymentToken    = "payment-token"
	flagMinterAccount   = "minter-account"
	flagMinterURL       = "minter-url"
	flagMinterAuthToken = "minter-auth-token"
	flagTokenSigningKey = "token-signing-key"
	flagTokenIssuer     = "token-issuer"
	flagAllowedOrigins  = "allowed-origins"
	flagStartPolicy     = "start-policy"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyOwner           = "owner"
	configKeyPaymentToken    = "payment_token"
	configKeyMinterAccount   = "minter_account"
	configKeyMinterURL       = "minter_url"
	configKeyMinterAuthToken = "minter_auth_token"
	configKeyTokenSigningKey = "token_signing_key"
	configKeyTokenIssuer     = "token_issuer"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyStartPolicy     = "start_policy"

	defaultDatabaseURL    = "sqlite:///tmp/gamepass.db"
	defaultHTTPListenAddr = ":8080"
	startPolicyForfeit    = "forfeit"
	startPolicyReject     = "reject"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	Owner           string
	PaymentToken    string
	MinterAccount   string
	MinterURL       string
	MinterAuthToken string
	TokenSigningKey string
	TokenIssuer     string
	AllowedOrigins  string
	StartPolicy     string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gamepassd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "gamepassd",
		Short:         "Game pass HTTP server",
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

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or SQLite connection string")
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagOwner, "", "Contract owner account id")
	cmd.Flags().String(flagPaymentToken, "", "Fungible token account id accepted for deposits")
	cmd.Flags().String(flagMinterAccount, "", "Minting contract account id")
	cmd.Flags().String(flagMinterURL, "", "Base URL of the reward minting service (optional)")
	cmd.Flags().String(flagMinterAuthToken, "", "Bearer token for the minting service")
	cmd.Flags().String(flagTokenSigningKey, "", "HS256 signing key for caller tokens")
	cmd.Flags().String(flagTokenIssuer, "", "Expected issuer of caller tokens")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins")
	cmd.Flags().String(flagStartPolicy, startPolicyForfeit, "Session restart policy: forfeit or reject")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "HTTP_LISTEN_ADDR",
		configKeyOwner:           "GAMEPASS_OWNER",
		configKeyPaymentToken:    "GAMEPASS_PAYMENT_TOKEN",
		configKeyMinterAccount:   "GAMEPASS_MINTER_ACCOUNT",
		configKeyMinterURL:       "GAMEPASS_MINTER_URL",
		configKeyMinterAuthToken: "GAMEPASS_MINTER_AUTH_TOKEN",
		configKeyTokenSigningKey: "GAMEPASS_TOKEN_SIGNING_KEY",
		configKeyTokenIssuer:     "GAMEPASS_TOKEN_ISSUER",
		configKeyAllowedOrigins:  "GAMEPASS_ALLOWED_ORIGINS",
		configKeyStartPolicy:     "GAMEPASS_START_POLICY",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyOwner:           flagOwner,
		configKeyPaymentToken:    flagPaymentToken,
		configKeyMinterAccount:   flagMinterAccount,
		configKeyMinterURL:       flagMinterURL,
		configKeyMinterAuthToken: flagMinterAuthToken,
		configKeyTokenSigningKey: flagTokenSigningKey,
		configKeyTokenIssuer:     flagTokenIssuer,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyStartPolicy:     flagStartPolicy,
	}
	for configKey, flagName := range flags {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.Owner = viper.GetString(configKeyOwner)
	cfg.PaymentToken = viper.GetString(configKeyPaymentToken)
	cfg.MinterAccount = viper.GetString(configKeyMinterAccount)
	cfg.MinterURL = viper.GetString(configKeyMinterURL)
	cfg.MinterAuthToken = viper.GetString(configKeyMinterAuthToken)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.StartPolicy = viper.GetString(configKeyStartPolicy)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	if cfg.Owner == "" {
		return fmt.Errorf("owner account is required")
	}
	if cfg.PaymentToken == "" {
		return fmt.Errorf("payment token account is required")
	}
	if cfg.MinterAccount == "" {
		return fmt.Errorf("minter account is required")
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	if cfg.StartPolicy != startPolicyForfeit && cfg.StartPolicy != startPolicyReject {
		return fmt.Errorf("start policy must be %q or %q", startPolicyForfeit, startPolicyReject)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	bootstrap := gormstore.DefaultBootstrap(cfg.Owner, cfg.PaymentToken, cfg.MinterAccount)
	if err := gormstore.Prepare(ctx, gormDB, bootstrap); err != nil {
		return fmt.Errorf("schema prepare: %w", err)
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().UnixMilli() }

	options := []gamepass.ServiceOption{
		gamepass.WithOperationLogger(&zapOperationLogger{logger: logger}),
	}
	if cfg.StartPolicy == startPolicyReject {
		options = append(options, gamepass.WithStartPolicy(gamepass.StartPolicyReject))
	}
	if cfg.MinterURL != "" {
		mintClient, err := minter.NewClient(cfg.MinterURL, logger, minter.WithAuthToken(cfg.MinterAuthToken))
		if err != nil {
			return fmt.Errorf("minter client init: %w", err)
		}
		options = append(options, gamepass.WithMintGateway(mintClient))
	}

	service, err := gamepass.NewService(store, clock, options...)
	if err != nil {
		return fmt.Errorf("gamepass service init: %w", err)
	}

	apiConfig := httpapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}
	return httpapi.Run(ctx, apiConfig, service, logger)
}

type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry gamepass.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("caller", entry.Caller.String()),
		zap.String("account", entry.Account.String()),
		zap.Uint16("games", uint16(entry.Games)),
		zap.String("tokens", entry.Tokens.String()),
		zap.Uint64("seed_id", uint64(entry.SeedID)),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		adapter.logger.Warn("gamepass operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("gamepass operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
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
			path = "gamepass.db"
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

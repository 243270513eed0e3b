package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	redcache "github.com/finbooks/ledger/internal/cache/redis"
	"github.com/finbooks/ledger/internal/config"
	"github.com/finbooks/ledger/internal/events/kafka"
	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/ledger"
	"github.com/finbooks/ledger/internal/storage/memory"
	"github.com/finbooks/ledger/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "ledgerd",
		Short:        "Double-entry bookkeeping ledger service",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger, err := buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, cleanup, err := buildStore(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []ledger.Option{ledger.WithLogger(logger)}

			if len(cfg.KafkaBrokers) > 0 {
				publisher := kafka.NewPublisher(cfg.KafkaBrokers)
				defer func() { _ = publisher.Close() }()

				opts = append(opts, ledger.WithPublisher(publisher))
				logger.Info("kafka publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers))
			}

			if cfg.RedisAddr != "" {
				client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
				opts = append(opts, ledger.WithCache(redcache.NewCache(client, cfg.CacheTTL)))
				logger.Info("balance cache enabled", zap.String("redis", cfg.RedisAddr))
			}

			svc := ledger.NewService(store, opts...)

			logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))

			return http.ListenAndServe(cfg.HTTPAddr, newHandler(svc))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cfg.DatabaseURL == "" {
				return fmt.Errorf("LEDGER_DATABASE_URL is required for migrate")
			}

			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			return postgres.Migrate(db)
		},
	}
}

func buildStore(cfg config.Config, logger *zap.Logger) (interfaces.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("LEDGER_DATABASE_URL not set, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return postgres.NewStore(db), func() { _ = db.Close() }, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel

	return cfg.Build()
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/information-sharing-networks/nfce-downloader/internal/config"
	"github.com/information-sharing-networks/nfce-downloader/internal/database"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/server"
	"github.com/information-sharing-networks/nfce-downloader/internal/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func main() {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "nfce-server",
		Short: "NFC-e download service",
		Long: `nfce-server retrieves NFC-e documents for taxpayers: it resolves protocol numbers with the
authority SOAP service, downloads the signed XML from the portal and tracks batch download sessions in PostgreSQL`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on startup")

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, skipMigrations bool) error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
	appLogger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		slog.String("log_level", cfg.LogLevel),
		slog.String("sefaz_environment", cfg.SefazEnvironment),
		slog.String("portal_base_url", cfg.PortalBaseURL),
		slog.Duration("upstream_timeout", cfg.UpstreamTimeout),
		slog.Int("period_max_days", cfg.PeriodMaxDays),
		slog.Float64("key_rate_limit_rps", cfg.KeyRateLimitRPS),
		slog.String("blob_dir", cfg.BlobDir),
	)

	pool, err := openDatabase(ctx, cfg, skipMigrations, appLogger)
	if err != nil {
		appLogger.Error("database unavailable", slog.String("error", err.Error()))
		return err
	}

	srv, err := server.NewServer(pool, cfg, appLogger)
	if err != nil {
		pool.Close()
		appLogger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}
	defer srv.DatabaseShutdown()

	appLogger.Info("starting server", slog.String("version", version.Get().Version))
	if err := srv.Start(ctx); err != nil {
		appLogger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

// openDatabase connects the pool, checks the server answers and brings the schema up to date
func openDatabase(ctx context.Context, cfg *config.Environment, skipMigrations bool, appLogger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DatabasePingTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	appLogger.Info("connected to PostgreSQL")

	if skipMigrations {
		return pool, nil
	}
	if err := database.Migrate(pingCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	appLogger.Info("database migrations applied")
	return pool, nil
}

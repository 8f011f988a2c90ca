package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lueurxax/maritime-claim-validator/internal/app"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
	db "github.com/lueurxax/maritime-claim-validator/internal/storage"
	"github.com/lueurxax/maritime-claim-validator/internal/traffic"
)

var rootCmd = &cobra.Command{
	Use:   "validator",
	Short: "Validate maritime research claims against vessel traffic data",
	Long: `validator extracts verifiable claims from research themes, checks each one
against the vessel traffic database and stores per-claim verdicts together
with an aggregate confidence for the theme.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}

// deps holds the connections one command needs.
type deps struct {
	cfg      *config.Config
	logger   *zerolog.Logger
	database *db.DB
	traffic  *traffic.Executor
}

func (r *deps) Close() {
	if r.traffic != nil {
		r.traffic.Close()
	}

	if r.database != nil {
		r.database.Close()
	}
}

// connect loads the configuration and opens the metadata store, running
// migrations first. The traffic database is opened only when withTraffic.
func connect(ctx context.Context, withTraffic bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)
	rt := &deps{cfg: cfg, logger: &logger}

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	rt.database, err = db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := rt.database.Migrate(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if withTraffic {
		rt.traffic, err = traffic.New(ctx, cfg, &logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to traffic database: %w", err)
		}
	}

	return rt, nil
}

// withApp connects, builds the application and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()

	rt, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, app.New(rt.cfg, rt.database, rt.traffic, rt.logger))
}

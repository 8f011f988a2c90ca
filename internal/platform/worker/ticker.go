package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SingleTickerConfig configures a loop driven by one ticker.
type SingleTickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Interval is the ticker interval.
	Interval time.Duration

	// Timeout bounds each OnTick run (0 for no bound).
	Timeout time.Duration

	// OnTick is called when the ticker fires.
	OnTick func(ctx context.Context) error

	// RunOnStart runs OnTick immediately when starting.
	RunOnStart bool

	// OnStop is called once when the loop exits.
	OnStop func()

	// Logger for the worker.
	Logger *zerolog.Logger
}

// SingleTickerLoop runs OnTick every Interval until the context is canceled.
// Tick errors and panics are logged and never stop the loop.
// Returns a wrapped context error when the context is canceled.
func SingleTickerLoop(ctx context.Context, cfg SingleTickerConfig) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("single ticker loop %s: non-positive interval %s", cfg.Name, cfg.Interval)
	}

	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Dur("interval", cfg.Interval).Msg("starting single ticker loop")

	defer func() {
		if cfg.OnStop != nil {
			cfg.OnStop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("single ticker loop stopped")
	}()

	if cfg.RunOnStart {
		runTick(ctx, cfg, logger)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("single ticker loop %s: %w", cfg.Name, ctx.Err())
		case <-ticker.C:
			runTick(ctx, cfg, logger)
		}
	}
}

func runTick(ctx context.Context, cfg SingleTickerConfig, logger *zerolog.Logger) {
	if cfg.OnTick == nil {
		return
	}

	defer RecoverPanic(logger, cfg.Name)

	err := RunWithTimeout(ctx, cfg.Timeout, cfg.OnTick)
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("tick failed")
	}
}

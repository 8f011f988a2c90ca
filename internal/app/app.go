// Package app wires the validation pipeline together and exposes the
// operations the command line runs:
//
//   - Serve: health/metrics server plus periodic revalidation of stale claims
//   - One-shot validation, claim generation and revalidation
//   - Theme and quarterly summaries
//   - Operator queries against the traffic database
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/llm"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/worker"
	db "github.com/lueurxax/maritime-claim-validator/internal/storage"
	"github.com/lueurxax/maritime-claim-validator/internal/traffic"
	"github.com/lueurxax/maritime-claim-validator/internal/validation"
)

const (
	bulkWorkerName = "stale-claim-revalidation"
	bulkLockID     = int64(94232)
)

// App holds the application dependencies.
type App struct {
	cfg       *config.Config
	database  *db.DB
	traffic   *traffic.Executor
	validator *validation.Validator
	logger    *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, trafficDB *traffic.Executor, logger *zerolog.Logger) *App {
	completer := llm.New(cfg, logger)

	logger.Info().
		Str("model", cfg.LLMModel).
		Int("validation_workers", cfg.ValidationWorkers).
		Str("default_quarter", cfg.DefaultQuarter).
		Msg("validation pipeline configured")

	return &App{
		cfg:       cfg,
		database:  database,
		traffic:   trafficDB,
		validator: validation.New(cfg, database, trafficDB, completer, logger),
		logger:    logger,
	}
}

// StartHealthServer starts the health check and metrics server.
// Readiness pings both databases.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.cfg.HealthPort, a.logger,
		observability.ReadinessCheck{Name: "metadata db", Pinger: a.database},
		observability.ReadinessCheck{Name: "traffic db", Pinger: a.traffic},
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunServe serves health and metrics and revalidates stale claims every
// BULK_INTERVAL until the context is canceled.
func (a *App) RunServe(ctx context.Context) error {
	go func() {
		if err := a.StartHealthServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health check server error")
		}
	}()

	return worker.SingleTickerLoop(ctx, worker.SingleTickerConfig{
		Name:       bulkWorkerName,
		Interval:   a.cfg.BulkInterval,
		Timeout:    a.cfg.BulkTimeout,
		RunOnStart: true,
		Logger:     a.logger,
		OnTick:     a.revalidateStaleLocked,
	})
}

// revalidateStaleLocked runs one bulk pass unless another instance holds
// the bulk lock.
func (a *App) revalidateStaleLocked(ctx context.Context) error {
	acquired, err := a.database.WithAdvisoryLock(ctx, bulkLockID, func(ctx context.Context) error {
		report, err := a.validator.RevalidateStale(ctx, 0)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if report.Failed > 0 {
			a.logger.Warn().Int("failed", report.Failed).Strs("errors", report.Errors).Msg("stale claims left unresolved")
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("bulk revalidation: %w", err)
	}

	if !acquired {
		a.logger.Debug().Msg("bulk revalidation running elsewhere, skipping")
	}

	return nil
}

// ValidateTheme validates the stored narrative of a theme.
func (a *App) ValidateTheme(ctx context.Context, themeID int64) (*domain.ValidationSummary, error) {
	return a.validator.ValidateTheme(ctx, themeID) //nolint:wrapcheck
}

// GenerateClaims replaces the stored claims of a theme.
func (a *App) GenerateClaims(ctx context.Context, themeID int64) ([]domain.ClaimRecord, error) {
	return a.validator.GenerateClaims(ctx, themeID) //nolint:wrapcheck
}

// RevalidateClaim re-runs one stored claim.
func (a *App) RevalidateClaim(ctx context.Context, claimID int64) (*domain.ValidationResult, error) {
	return a.validator.RevalidateClaim(ctx, claimID) //nolint:wrapcheck
}

// CreateManualClaim stores an operator claim with its own validation query.
func (a *App) CreateManualClaim(ctx context.Context, claim validation.ManualClaim) (*domain.ClaimRecord, error) {
	return a.validator.CreateManualClaim(ctx, claim) //nolint:wrapcheck
}

// RevalidateStale runs one bulk pass over stale claims.
func (a *App) RevalidateStale(ctx context.Context, limit int) (*validation.BulkReport, error) {
	return a.validator.RevalidateStale(ctx, limit) //nolint:wrapcheck
}

// CreateTheme stores a new research theme.
func (a *App) CreateTheme(ctx context.Context, theme *domain.Theme) (int64, error) {
	if theme.Quarter == "" {
		theme.Quarter = a.cfg.DefaultQuarter
	}

	if _, _, err := config.ParseQuarter(theme.Quarter); err != nil {
		return 0, fmt.Errorf("theme quarter: %w", err)
	}

	return a.database.CreateTheme(ctx, theme) //nolint:wrapcheck
}

// ThemeReport is a theme with its claim summary and stored claims.
type ThemeReport struct {
	Theme   *domain.Theme                  `json:"theme"`
	Summary *domain.ThemeValidationSummary `json:"summary"`
	Claims  []domain.ClaimRecord           `json:"claims"`
}

// ThemeSummary loads a theme, its claim summary and its claims.
func (a *App) ThemeSummary(ctx context.Context, themeID int64) (*ThemeReport, error) {
	theme, err := a.database.GetTheme(ctx, themeID)
	if err != nil {
		return nil, fmt.Errorf("loading theme %d: %w", themeID, err)
	}

	summary, err := a.database.GetValidationSummary(ctx, themeID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	claims, err := a.database.ListThemeClaims(ctx, themeID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &ThemeReport{Theme: theme, Summary: summary, Claims: claims}, nil
}

// QuarterReport is the quarterly summary and the quarter's themes.
type QuarterReport struct {
	Summary *domain.QuarterlySummary `json:"summary"`
	Themes  []domain.Theme           `json:"themes"`
}

// QuarterlySummary aggregates a quarter; themes at or above
// VALIDATION_THRESHOLD count as high confidence.
func (a *App) QuarterlySummary(ctx context.Context, quarter string) (*QuarterReport, error) {
	if quarter == "" {
		quarter = a.cfg.DefaultQuarter
	}

	summary, err := a.database.GetQuarterlySummary(ctx, quarter, a.cfg.ValidationThreshold)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	themes, err := a.database.ListThemes(ctx, quarter, 0)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &QuarterReport{Summary: summary, Themes: themes}, nil
}

// RunCustomQuery runs an operator query against the traffic database.
func (a *App) RunCustomQuery(ctx context.Context, sql string) (domain.ResultSet, error) {
	return a.traffic.RunCustomQuery(ctx, sql) //nolint:wrapcheck
}

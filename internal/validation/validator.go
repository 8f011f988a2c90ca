package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/llm"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
)

// Log field keys.
const (
	logKeyThemeID    = "theme_id"
	logKeyClaimID    = "claim_id"
	logKeyRunID      = "run_id"
	logKeyClaimType  = "claim_type"
	logKeyRows       = "rows"
	logKeyConfidence = "confidence"
)

// QueryExecutor runs read-only statements against the vessel traffic database.
// RunCustomQuery serves operator-written statements and rejects anything
// but a single read-only query.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string, args ...any) (domain.ResultSet, error)
	RunCustomQuery(ctx context.Context, sql string) (domain.ResultSet, error)
}

// Repository is the research metadata store.
type Repository interface {
	GetTheme(ctx context.Context, id int64) (*domain.Theme, error)
	UpdateThemeConfidence(ctx context.Context, themeID int64, confidence float64) error
	StoreClaim(ctx context.Context, rec *domain.ClaimRecord) (int64, error)
	GetClaim(ctx context.Context, id int64) (*domain.ClaimRecord, error)
	UpdateClaimResult(ctx context.Context, rec *domain.ClaimRecord) error
	DeleteThemeClaims(ctx context.Context, themeID int64) (int64, error)
	ListThemeClaims(ctx context.Context, themeID int64) ([]domain.ClaimRecord, error)
	ListStaleClaimIDs(ctx context.Context, limit int) ([]int64, error)
}

// Validator checks research findings against vessel traffic data.
type Validator struct {
	cfg       *config.Config
	repo      Repository
	executor  QueryExecutor
	extractor *ClaimExtractor
	generator *QueryGenerator
	analyzer  *Analyzer
	logger    *zerolog.Logger

	// persistMu serializes claim writes of concurrent workers.
	persistMu sync.Mutex
}

func New(cfg *config.Config, repo Repository, executor QueryExecutor, completer llm.Completer, logger *zerolog.Logger) *Validator {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &Validator{
		cfg:       cfg,
		repo:      repo,
		executor:  executor,
		extractor: NewClaimExtractor(completer, cfg.MaxClaims, logger),
		generator: NewQueryGenerator(cfg.DefaultQuarter),
		analyzer:  NewAnalyzer(completer, logger),
		logger:    logger,
	}
}

// ValidateTheme validates the stored narrative of a research theme.
func (v *Validator) ValidateTheme(ctx context.Context, themeID int64) (*domain.ValidationSummary, error) {
	theme, err := v.repo.GetTheme(ctx, themeID)
	if err != nil {
		return failedSummary(themeID, "", err), fmt.Errorf("loading theme %d: %w", themeID, err)
	}

	return v.ValidateFinding(ctx, theme.ID, theme.Quarter, theme.Narrative(), theme.Targets())
}

// ValidateFinding extracts claims from narrative, validates each against the
// traffic database and replaces the theme's generated claims with the new
// records. Manual claims of the theme are revalidated in the same run. The
// theme confidence is overwritten with the aggregate, or with 0 when there
// is nothing to validate. Per-claim failures are recorded on the claim; only
// a failure to replace the claims or persist the aggregate is returned.
func (v *Validator) ValidateFinding(ctx context.Context, themeID int64, quarter, narrative string, targets []string) (*domain.ValidationSummary, error) {
	start := time.Now()
	runID := uuid.NewString()

	logger := v.logger.With().Int64(logKeyThemeID, themeID).Str(logKeyRunID, runID).Logger()
	logger.Info().Msg("starting validation")

	summary := &domain.ValidationSummary{ThemeID: themeID, RunID: runID}

	claims := v.extractor.Extract(ctx, narrative, targets)

	deleted, err := v.repo.DeleteThemeClaims(ctx, themeID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to remove previous claims")

		return failedSummary(themeID, runID, err), fmt.Errorf("replacing claims of theme %d: %w", themeID, err)
	}

	manual, err := v.repo.ListThemeClaims(ctx, themeID)
	if err != nil {
		return failedSummary(themeID, runID, err), fmt.Errorf("listing manual claims of theme %d: %w", themeID, err)
	}

	logger.Debug().Int64("replaced", deleted).Int("manual", len(manual)).Msg("previous claims cleared")

	if len(claims) == 0 && len(manual) == 0 {
		logger.Warn().Msg("no verifiable claims extracted")

		if err := v.repo.UpdateThemeConfidence(ctx, themeID, 0); err != nil {
			return failedSummary(themeID, runID, err), fmt.Errorf("updating theme %d confidence: %w", themeID, err)
		}

		return summary, nil
	}

	results := v.validateClaims(ctx, themeID, runID, quarter, claims)

	for i := range manual {
		result, err := v.revalidateRecord(ctx, &manual[i], quarter, runID)
		if err != nil {
			logger.Error().Err(err).Int64(logKeyClaimID, manual[i].ID).Msg("failed to update manual claim")
			result.MarkFailed(err.Error())
		}

		results = append(results, result)
	}

	overall := AggregateConfidence(results)

	if err := v.repo.UpdateThemeConfidence(ctx, themeID, overall); err != nil {
		logger.Error().Err(err).Msg("failed to persist theme confidence")

		return failedSummary(themeID, runID, err), fmt.Errorf("updating theme %d confidence: %w", themeID, err)
	}

	summary.Results = results
	summary.OverallConfidence = overall
	summary.TotalClaims = len(results)

	for _, r := range results {
		if r.SupportsClaim {
			summary.SupportedClaims++
		}
	}

	observability.ThemeConfidence.Set(overall)
	observability.ValidationRunDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Float64(logKeyConfidence, overall).
		Int("claims", summary.TotalClaims).
		Int("supported", summary.SupportedClaims).
		Dur("duration", time.Since(start)).
		Msg("validation completed")

	return summary, nil
}

// validateClaims runs claims on up to VALIDATION_WORKERS goroutines and
// returns results in claim order once every claim has finished.
func (v *Validator) validateClaims(ctx context.Context, themeID int64, runID, quarter string, claims []domain.Claim) []domain.ValidationResult {
	results := make([]domain.ValidationResult, len(claims))

	workers := v.cfg.ValidationWorkers
	if workers <= 1 {
		for i, claim := range claims {
			v.logger.Info().Int("claim", i+1).Int("total", len(claims)).Str(logKeyClaimType, string(claim.Type)).Msg("validating claim")
			results[i] = v.validateAndStore(ctx, themeID, runID, quarter, claim)
		}

		return results
	}

	var g errgroup.Group

	g.SetLimit(workers)

	for i, claim := range claims {
		g.Go(func() error {
			results[i] = v.validateAndStore(ctx, themeID, runID, quarter, claim)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	return results
}

// validateAndStore validates one claim and persists its record.
func (v *Validator) validateAndStore(ctx context.Context, themeID int64, runID, quarter string, claim domain.Claim) domain.ValidationResult {
	result := v.validateClaim(ctx, quarter, claim)

	rec := domain.ClaimRecordFromResult(themeID, runID, result)

	v.persistMu.Lock()
	id, err := v.repo.StoreClaim(ctx, &rec)
	v.persistMu.Unlock()

	if err != nil {
		v.logger.Error().Err(err).Int64(logKeyThemeID, themeID).Msg("failed to store validation claim")
		result.MarkFailed(fmt.Sprintf("storing claim: %v", err))
	} else {
		result.ClaimID = id
	}

	observability.ValidationsTotal.WithLabelValues(string(claim.Type), string(result.Status)).Inc()

	return result
}

// validateClaim generates, executes and analyzes the query for one claim.
// Execution failure short-circuits to a failed result without analysis.
func (v *Validator) validateClaim(ctx context.Context, quarter string, claim domain.Claim) domain.ValidationResult {
	q := v.generator.Generate(claim, quarter)

	result := domain.ValidationResult{
		Claim:     claim,
		Query:     q.SQL,
		QueryArgs: q.Args,
		Status:    domain.StatusValidated,
	}

	start := time.Now()
	rows, err := v.executor.Execute(ctx, q.SQL, q.Args...)

	observability.TrafficQueryDuration.WithLabelValues(string(claim.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		v.logger.Warn().Err(err).Str(logKeyClaimType, string(claim.Type)).Msg("validation query failed")
		result.MarkFailed(fmt.Sprintf("query execution failed: %v", err))

		return result
	}

	v.applyAnalysis(&result, rows, v.analyzer.Analyze(ctx, claim, rows))

	return result
}

// validateManualClaim runs the operator's stored query as written and
// analyzes the rows with the operator's validation logic.
func (v *Validator) validateManualClaim(ctx context.Context, rec *domain.ClaimRecord) domain.ValidationResult {
	result := domain.ValidationResult{
		Claim:  rec.Claim,
		Query:  rec.Query,
		Status: domain.StatusValidated,
	}

	start := time.Now()
	rows, err := v.executor.RunCustomQuery(ctx, rec.Query)

	observability.TrafficQueryDuration.WithLabelValues(string(rec.Claim.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		v.logger.Warn().Err(err).Int64(logKeyClaimID, rec.ID).Msg("manual validation query failed")
		result.MarkFailed(fmt.Sprintf("query execution failed: %v", err))

		return result
	}

	v.applyAnalysis(&result, rows, v.analyzer.AnalyzeWithLogic(ctx, rec.Claim, rec.ValidationLogic, rows))

	return result
}

func (v *Validator) applyAnalysis(result *domain.ValidationResult, rows domain.ResultSet, analysis domain.Analysis) {
	result.SupportsClaim = analysis.SupportsClaim
	result.Confidence = analysis.Confidence
	result.DataPointsFound = analysis.DataPoints
	result.Evidence = analysis.Evidence
	result.Limitations = analysis.Limitations
	result.AnalysisText = analysis.AnalysisText

	v.logger.Debug().
		Str(logKeyClaimType, string(result.Claim.Type)).
		Int(logKeyRows, rows.Len()).
		Float64(logKeyConfidence, result.Confidence).
		Bool("supports", result.SupportsClaim).
		Msg("claim analyzed")
}

func failedSummary(themeID int64, runID string, err error) *domain.ValidationSummary {
	return &domain.ValidationSummary{
		ThemeID:           themeID,
		RunID:             runID,
		OverallConfidence: 0,
		Error:             err.Error(),
	}
}

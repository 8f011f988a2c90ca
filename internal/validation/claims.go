package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/errors"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
	"github.com/lueurxax/maritime-claim-validator/internal/traffic"
)

// GenerateClaims replaces the generated claims of a theme with freshly extracted
// ones. Each query is test-executed so the record carries its row count;
// claims are stored as pending until validated. Manual claims are kept.
func (v *Validator) GenerateClaims(ctx context.Context, themeID int64) ([]domain.ClaimRecord, error) {
	theme, err := v.repo.GetTheme(ctx, themeID)
	if err != nil {
		return nil, fmt.Errorf("loading theme %d: %w", themeID, err)
	}

	narrative := theme.Narrative()
	if narrative == "" {
		return nil, fmt.Errorf("theme %d: %w", themeID, errors.ErrNoNarrative)
	}

	deleted, err := v.repo.DeleteThemeClaims(ctx, themeID)
	if err != nil {
		return nil, fmt.Errorf("deleting claims of theme %d: %w", themeID, err)
	}

	runID := uuid.NewString()
	logger := v.logger.With().Int64(logKeyThemeID, themeID).Str(logKeyRunID, runID).Logger()
	logger.Info().Int64("deleted", deleted).Msg("regenerating claims")

	claims := v.extractor.Extract(ctx, narrative, theme.Targets())
	records := make([]domain.ClaimRecord, 0, len(claims))

	for _, claim := range claims {
		q := v.generator.Generate(claim, theme.Quarter)

		dataPoints := 0

		rows, err := v.executor.Execute(ctx, q.SQL, q.Args...)
		if err != nil {
			logger.Warn().Err(err).Str(logKeyClaimType, string(claim.Type)).Msg("claim query test run failed")
		} else {
			dataPoints = rows.Len()
		}

		rec := domain.ClaimRecord{
			ThemeID:         themeID,
			RunID:           runID,
			Claim:           claim,
			Query:           q.SQL,
			QueryArgs:       q.Args,
			Status:          domain.StatusPending,
			DataPointsFound: dataPoints,
		}

		id, err := v.repo.StoreClaim(ctx, &rec)
		if err != nil {
			return records, fmt.Errorf("storing claim for theme %d: %w", themeID, err)
		}

		rec.ID = id
		records = append(records, rec)
	}

	logger.Info().Int("claims", len(records)).Msg("claims generated")

	return records, nil
}

// RevalidateClaim re-runs validation for one stored claim and recomputes the
// confidence of its theme from all stored claims.
func (v *Validator) RevalidateClaim(ctx context.Context, claimID int64) (*domain.ValidationResult, error) {
	rec, result, err := v.revalidate(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if _, err := v.RecomputeThemeConfidence(ctx, rec.ThemeID); err != nil {
		return result, err
	}

	return result, nil
}

// revalidate validates a stored claim and writes the outcome back to it.
func (v *Validator) revalidate(ctx context.Context, claimID int64) (*domain.ClaimRecord, *domain.ValidationResult, error) {
	rec, err := v.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading claim %d: %w", claimID, err)
	}

	quarter := ""
	if theme, err := v.repo.GetTheme(ctx, rec.ThemeID); err == nil {
		quarter = theme.Quarter
	} else if !errors.Is(err, errors.ErrThemeNotFound) {
		return nil, nil, fmt.Errorf("loading theme %d: %w", rec.ThemeID, err)
	}

	result, err := v.revalidateRecord(ctx, rec, quarter, uuid.NewString())
	if err != nil {
		return rec, nil, err
	}

	return rec, &result, nil
}

// revalidateRecord validates rec and updates it in place and in the store.
// Generated claims get a fresh query from their descriptors; manual claims
// run their stored query.
func (v *Validator) revalidateRecord(ctx context.Context, rec *domain.ClaimRecord, quarter, runID string) (domain.ValidationResult, error) {
	var result domain.ValidationResult
	if rec.Manual {
		result = v.validateManualClaim(ctx, rec)
	} else {
		result = v.validateClaim(ctx, quarter, rec.Claim)
	}

	result.ClaimID = rec.ID

	now := time.Now()
	confidence := result.Confidence
	supports := result.SupportsClaim

	rec.RunID = runID
	rec.Query = result.Query
	rec.QueryArgs = result.QueryArgs
	rec.Status = result.Status
	rec.Confidence = &confidence
	rec.SupportsClaim = &supports
	rec.DataPointsFound = result.DataPointsFound
	rec.Evidence = result.Evidence
	rec.AnalysisText = result.AnalysisText
	rec.ValidatedAt = &now

	v.persistMu.Lock()
	err := v.repo.UpdateClaimResult(ctx, rec)
	v.persistMu.Unlock()

	observability.ValidationsTotal.WithLabelValues(string(rec.Claim.Type), string(result.Status)).Inc()

	if err != nil {
		return result, fmt.Errorf("updating claim %d: %w", rec.ID, err)
	}

	v.logger.Info().
		Int64(logKeyClaimID, rec.ID).
		Int64(logKeyThemeID, rec.ThemeID).
		Bool("manual", rec.Manual).
		Str("status", string(rec.Status)).
		Float64(logKeyConfidence, confidence).
		Msg("claim revalidated")

	return result, nil
}

// RecomputeThemeConfidence aggregates the stored claims of a theme and
// overwrites the theme confidence with the result.
func (v *Validator) RecomputeThemeConfidence(ctx context.Context, themeID int64) (float64, error) {
	records, err := v.repo.ListThemeClaims(ctx, themeID)
	if err != nil {
		return 0, fmt.Errorf("listing claims of theme %d: %w", themeID, err)
	}

	results := make([]domain.ValidationResult, 0, len(records))
	for i := range records {
		results = append(results, records[i].ToResult())
	}

	overall := AggregateConfidence(results)

	if err := v.repo.UpdateThemeConfidence(ctx, themeID, overall); err != nil {
		return 0, fmt.Errorf("updating theme %d confidence: %w", themeID, err)
	}

	return overall, nil
}

// ManualClaim is an operator-entered claim validated by the operator's own
// read-only query.
type ManualClaim struct {
	ThemeID int64
	Text    string
	Type    domain.ClaimType
	Vessel  string
	Route   string
	Period  string
	Query   string
	Logic   string
}

const manualClaimNote = "Manual validation query created by operator"

// CreateManualClaim checks the query, test-runs it to record the row count
// and stores the claim as pending. The cleaned statement is stored and every
// later validation runs it unchanged.
func (v *Validator) CreateManualClaim(ctx context.Context, in ManualClaim) (*domain.ClaimRecord, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("claim text is required: %w", errors.ErrInvalidInput)
	}

	stmt, err := traffic.ValidateReadOnly(in.Query)
	if err != nil {
		return nil, fmt.Errorf("manual claim query: %w", err)
	}

	if _, err := v.repo.GetTheme(ctx, in.ThemeID); err != nil {
		return nil, fmt.Errorf("loading theme %d: %w", in.ThemeID, err)
	}

	rows, err := v.executor.RunCustomQuery(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("manual claim query failed: %w", err)
	}

	claimType := in.Type
	if claimType == "" {
		claimType = domain.ClaimTypeGeneral
	}

	rec := domain.ClaimRecord{
		ThemeID: in.ThemeID,
		RunID:   uuid.NewString(),
		Claim: domain.Claim{
			Text:   text,
			Type:   claimType,
			Vessel: strings.TrimSpace(in.Vessel),
			Route:  strings.TrimSpace(in.Route),
			Period: NormalizePeriod(in.Period),
		},
		Manual:          true,
		ValidationLogic: strings.TrimSpace(in.Logic),
		Query:           stmt,
		Status:          domain.StatusPending,
		DataPointsFound: rows.Len(),
		AnalysisText:    manualClaimNote,
	}

	v.persistMu.Lock()
	id, err := v.repo.StoreClaim(ctx, &rec)
	v.persistMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("storing manual claim for theme %d: %w", in.ThemeID, err)
	}

	rec.ID = id

	v.logger.Info().
		Int64(logKeyClaimID, id).
		Int64(logKeyThemeID, in.ThemeID).
		Int(logKeyRows, rows.Len()).
		Msg("manual claim created")

	return &rec, nil
}

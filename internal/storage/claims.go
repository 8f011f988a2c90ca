package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	coreerrors "github.com/lueurxax/maritime-claim-validator/internal/core/errors"
)

const claimColumns = `id, research_metadata_id, run_id, claim_text, claim_type, vessel_filter, route_filter,
	period_filter, metric, expected_change, manual, validation_logic, validation_query, query_args, status, confidence_score,
	supports_claim, data_points_found, evidence, analysis_text, validated_at, created_at`

const errFmtIterateClaims = "iterate claims: %w"

// claimRow mirrors a validation_claims row.
type claimRow struct {
	ID              int64
	ThemeID         int64
	RunID           pgtype.UUID
	Text            string
	Type            string
	Vessel          string
	Route           string
	Period          string
	Metric          string
	ExpectedChange  string
	Manual          bool
	ValidationLogic string
	Query           string
	QueryArgs       []byte
	Status          string
	Confidence      pgtype.Float8
	SupportsClaim   pgtype.Bool
	DataPointsFound int32
	Evidence        string
	AnalysisText    string
	ValidatedAt     pgtype.Timestamptz
	CreatedAt       time.Time
}

func (r *claimRow) scanTargets() []any {
	return []any{
		&r.ID, &r.ThemeID, &r.RunID, &r.Text, &r.Type, &r.Vessel, &r.Route,
		&r.Period, &r.Metric, &r.ExpectedChange, &r.Manual, &r.ValidationLogic, &r.Query, &r.QueryArgs, &r.Status, &r.Confidence,
		&r.SupportsClaim, &r.DataPointsFound, &r.Evidence, &r.AnalysisText, &r.ValidatedAt, &r.CreatedAt,
	}
}

func (r *claimRow) toDomain() (domain.ClaimRecord, error) {
	args, err := decodeArgs(r.QueryArgs)
	if err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("claim %d: %w", r.ID, err)
	}

	return domain.ClaimRecord{
		ID:      r.ID,
		ThemeID: r.ThemeID,
		RunID:   fromUUID(r.RunID),
		Claim: domain.Claim{
			Text:           r.Text,
			Type:           domain.ParseClaimType(r.Type),
			Vessel:         r.Vessel,
			Route:          r.Route,
			Period:         r.Period,
			Metric:         r.Metric,
			ExpectedChange: r.ExpectedChange,
		},
		Manual:          r.Manual,
		ValidationLogic: r.ValidationLogic,
		Query:           r.Query,
		QueryArgs:       args,
		Status:          domain.ValidationStatus(r.Status),
		Confidence:      fromFloat8Ptr(r.Confidence),
		SupportsClaim:   fromBoolPtr(r.SupportsClaim),
		DataPointsFound: int(r.DataPointsFound),
		Evidence:        r.Evidence,
		AnalysisText:    r.AnalysisText,
		ValidatedAt:     fromTimestamptzPtr(r.ValidatedAt),
		CreatedAt:       r.CreatedAt,
	}, nil
}

// encodeArgs stores bind arguments as a JSON array. Times are kept as
// RFC 3339 strings.
func encodeArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode query args: %w", err)
	}

	return data, nil
}

// decodeArgs restores integral numbers as int64 and other numbers as float64.
func decodeArgs(data []byte) ([]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode query args: %w", err)
	}

	for i, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}

		if iv, err := n.Int64(); err == nil {
			raw[i] = iv
		} else if fv, err := n.Float64(); err == nil {
			raw[i] = fv
		}
	}

	return raw, nil
}

// StoreClaim inserts a claim record and returns its id.
func (db *DB) StoreClaim(ctx context.Context, rec *domain.ClaimRecord) (int64, error) {
	args, err := encodeArgs(rec.QueryArgs)
	if err != nil {
		return 0, err
	}

	var id int64

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO validation_claims (
			research_metadata_id, run_id, claim_text, claim_type, vessel_filter, route_filter,
			period_filter, metric, expected_change, validation_query, query_args, status,
			confidence_score, supports_claim, data_points_found, evidence, analysis_text, validated_at,
			manual, validation_logic
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`,
		rec.ThemeID,
		toUUID(rec.RunID),
		SanitizeUTF8(rec.Claim.Text),
		string(rec.Claim.Type),
		rec.Claim.Vessel,
		rec.Claim.Route,
		rec.Claim.Period,
		rec.Claim.Metric,
		rec.Claim.ExpectedChange,
		rec.Query,
		args,
		string(rec.Status),
		toFloat8Ptr(rec.Confidence),
		toBoolPtr(rec.SupportsClaim),
		rec.DataPointsFound,
		SanitizeUTF8(rec.Evidence),
		SanitizeUTF8(rec.AnalysisText),
		toTimestamptzPtr(rec.ValidatedAt),
		rec.Manual,
		SanitizeUTF8(rec.ValidationLogic),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store claim: %w", err)
	}

	return id, nil
}

// GetClaim loads one claim record.
func (db *DB) GetClaim(ctx context.Context, id int64) (*domain.ClaimRecord, error) {
	var row claimRow

	err := db.Pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM validation_claims WHERE id = $1`, id).
		Scan(row.scanTargets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrClaimNotFound
		}

		return nil, fmt.Errorf("get claim: %w", err)
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// UpdateClaimResult writes the outcome of a revalidation back to a claim.
func (db *DB) UpdateClaimResult(ctx context.Context, rec *domain.ClaimRecord) error {
	args, err := encodeArgs(rec.QueryArgs)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE validation_claims
		SET run_id = $2,
			validation_query = $3,
			query_args = $4,
			status = $5,
			confidence_score = $6,
			supports_claim = $7,
			data_points_found = $8,
			evidence = $9,
			analysis_text = $10,
			validated_at = $11
		WHERE id = $1
	`,
		rec.ID,
		toUUID(rec.RunID),
		rec.Query,
		args,
		string(rec.Status),
		toFloat8Ptr(rec.Confidence),
		toBoolPtr(rec.SupportsClaim),
		rec.DataPointsFound,
		SanitizeUTF8(rec.Evidence),
		SanitizeUTF8(rec.AnalysisText),
		toTimestamptzPtr(rec.ValidatedAt),
	)
	if err != nil {
		return fmt.Errorf("update claim result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return coreerrors.ErrClaimNotFound
	}

	return nil
}

// DeleteThemeClaims removes the generated claims of a theme and returns how
// many were deleted. Manual claims are kept.
func (db *DB) DeleteThemeClaims(ctx context.Context, themeID int64) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM validation_claims WHERE research_metadata_id = $1 AND NOT manual`, themeID)
	if err != nil {
		return 0, fmt.Errorf("delete theme claims: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListThemeClaims returns the claims of a theme in insertion order.
func (db *DB) ListThemeClaims(ctx context.Context, themeID int64) ([]domain.ClaimRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+claimColumns+`
		FROM validation_claims
		WHERE research_metadata_id = $1
		ORDER BY id
	`, themeID)
	if err != nil {
		return nil, fmt.Errorf("list theme claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.ClaimRecord

	for rows.Next() {
		var row claimRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}

		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		claims = append(claims, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterateClaims, err)
	}

	return claims, nil
}

// ListStaleClaimIDs returns claims that have no confidence, zero confidence
// or no support verdict, oldest first.
func (db *DB) ListStaleClaimIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id
		FROM validation_claims
		WHERE confidence_score IS NULL
		   OR confidence_score = 0
		   OR supports_claim IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale claims: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf(errFmtIterateClaims, err)
	}

	return ids, nil
}

// GetValidationSummary aggregates the stored claims of a theme.
func (db *DB) GetValidationSummary(ctx context.Context, themeID int64) (*domain.ThemeValidationSummary, error) {
	var (
		summary = &domain.ThemeValidationSummary{ThemeID: themeID}
		last    pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE supports_claim),
		       COALESCE(AVG(confidence_score), 0),
		       MAX(validated_at)
		FROM validation_claims
		WHERE research_metadata_id = $1
	`, themeID).Scan(&summary.TotalClaims, &summary.SupportedClaims, &summary.AvgConfidence, &last)
	if err != nil {
		return nil, fmt.Errorf("get validation summary: %w", err)
	}

	summary.LastValidation = fromTimestamptzPtr(last)
	summary.SupportRate = supportRate(summary.SupportedClaims, summary.TotalClaims)

	return summary, nil
}

func supportRate(supported, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(supported) / float64(total)
}

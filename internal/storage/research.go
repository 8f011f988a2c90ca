package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	coreerrors "github.com/lueurxax/maritime-claim-validator/internal/core/errors"
)

const themeColumns = `id, quarter, theme_type, title, user_guidance, enhanced_query, research_content,
	validation_targets, overall_confidence, status, created_at, updated_at`

// themeRow mirrors a research_metadata row.
type themeRow struct {
	ID                int64
	Quarter           string
	ThemeType         string
	Title             string
	UserGuidance      string
	EnhancedQuery     string
	ResearchContent   string
	ValidationTargets []string
	OverallConfidence pgtype.Float8
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r *themeRow) scanTargets() []any {
	return []any{
		&r.ID, &r.Quarter, &r.ThemeType, &r.Title, &r.UserGuidance, &r.EnhancedQuery, &r.ResearchContent,
		&r.ValidationTargets, &r.OverallConfidence, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r *themeRow) toDomain() *domain.Theme {
	return &domain.Theme{
		ID:                r.ID,
		Quarter:           r.Quarter,
		ThemeType:         r.ThemeType,
		Title:             r.Title,
		UserGuidance:      r.UserGuidance,
		EnhancedQuery:     r.EnhancedQuery,
		ResearchContent:   r.ResearchContent,
		ValidationTargets: r.ValidationTargets,
		OverallConfidence: fromFloat8Ptr(r.OverallConfidence),
		Status:            r.Status,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// CreateTheme stores a new research theme and returns its id.
func (db *DB) CreateTheme(ctx context.Context, t *domain.Theme) (int64, error) {
	targets := t.ValidationTargets
	if targets == nil {
		targets = []string{}
	}

	status := t.Status
	if status == "" {
		status = domain.ThemeStatusPending
	}

	var id int64

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO research_metadata (
			quarter, theme_type, title, user_guidance, enhanced_query,
			research_content, validation_targets, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		t.Quarter,
		t.ThemeType,
		SanitizeUTF8(t.Title),
		SanitizeUTF8(t.UserGuidance),
		SanitizeUTF8(t.EnhancedQuery),
		SanitizeUTF8(t.ResearchContent),
		targets,
		status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create theme: %w", err)
	}

	return id, nil
}

// GetTheme loads one research theme.
func (db *DB) GetTheme(ctx context.Context, id int64) (*domain.Theme, error) {
	var row themeRow

	err := db.Pool.QueryRow(ctx, `SELECT `+themeColumns+` FROM research_metadata WHERE id = $1`, id).
		Scan(row.scanTargets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrThemeNotFound
		}

		return nil, fmt.Errorf("get theme: %w", err)
	}

	return row.toDomain(), nil
}

// ListThemes returns the most recent themes of a quarter, or of all quarters
// when quarter is empty.
func (db *DB) ListThemes(ctx context.Context, quarter string, limit int) ([]domain.Theme, error) {
	if limit <= 0 {
		limit = defaultThemeLimit
	}

	limit = min(limit, maxThemeLimit)

	rows, err := db.Pool.Query(ctx, `
		SELECT `+themeColumns+`
		FROM research_metadata
		WHERE $1 = '' OR quarter = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, quarter, limit)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	defer rows.Close()

	var themes []domain.Theme

	for rows.Next() {
		var row themeRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}

		themes = append(themes, *row.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}

	return themes, nil
}

// UpdateThemeConfidence overwrites the overall confidence of a theme and
// marks it completed.
func (db *DB) UpdateThemeConfidence(ctx context.Context, themeID int64, confidence float64) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE research_metadata
		SET overall_confidence = $2,
			status = $3,
			updated_at = NOW()
		WHERE id = $1
	`, themeID, confidence, domain.ThemeStatusCompleted)
	if err != nil {
		return fmt.Errorf("update theme confidence: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return coreerrors.ErrThemeNotFound
	}

	return nil
}

// GetQuarterlySummary aggregates the themes of a quarter. Themes at or above
// highConfidence count as high-confidence findings.
func (db *DB) GetQuarterlySummary(ctx context.Context, quarter string, highConfidence float64) (*domain.QuarterlySummary, error) {
	summary := &domain.QuarterlySummary{Quarter: quarter}

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE overall_confidence >= $2),
		       COALESCE(AVG(overall_confidence), 0),
		       COUNT(*) FILTER (WHERE status = $3)
		FROM research_metadata
		WHERE quarter = $1
	`, quarter, highConfidence, domain.ThemeStatusCompleted).Scan(
		&summary.TotalFindings,
		&summary.HighConfidenceFindings,
		&summary.AverageConfidence,
		&summary.CompletedFindings,
	)
	if err != nil {
		return nil, fmt.Errorf("get quarterly summary: %w", err)
	}

	return summary, nil
}

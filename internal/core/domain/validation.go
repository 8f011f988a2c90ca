package domain

import "time"

// ValidationStatus is the per-claim outcome of a validation attempt.
type ValidationStatus string

// Validation status constants.
const (
	StatusPending   ValidationStatus = "pending"
	StatusValidated ValidationStatus = "validated"
	StatusFailed    ValidationStatus = "failed"
)

// ResultSet is the tabular output of a traffic query.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (r ResultSet) Len() int {
	return len(r.Rows)
}

// Analysis is the verdict produced for one claim and its result rows.
type Analysis struct {
	Support       string
	SupportsClaim bool
	Confidence    float64
	Evidence      string
	Limitations   string
	Summary       string
	AnalysisText  string
	DataPoints    int
}

// ValidationResult binds a claim to the outcome of validating it.
// A failed result always carries zero confidence and no support.
type ValidationResult struct {
	ClaimID         int64
	Claim           Claim
	Query           string
	QueryArgs       []any
	SupportsClaim   bool
	Confidence      float64
	DataPointsFound int
	Evidence        string
	Limitations     string
	AnalysisText    string
	Status          ValidationStatus
	Error           string
}

// MarkFailed moves the result into the failed state.
func (r *ValidationResult) MarkFailed(reason string) {
	r.Status = StatusFailed
	r.Confidence = 0
	r.SupportsClaim = false
	r.Error = reason
	r.AnalysisText = reason
}

// ValidationSummary aggregates the results of one validation run for a theme.
type ValidationSummary struct {
	ThemeID           int64
	RunID             string
	Results           []ValidationResult
	OverallConfidence float64
	TotalClaims       int
	SupportedClaims   int
	Error             string
}

// Theme is a research theme whose narrative findings are validated.
type Theme struct {
	ID                int64
	Quarter           string
	ThemeType         string
	Title             string
	UserGuidance      string
	EnhancedQuery     string
	ResearchContent   string
	ValidationTargets []string
	OverallConfidence *float64
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Narrative returns the text claims are extracted from.
func (t *Theme) Narrative() string {
	if t.ResearchContent != "" {
		return t.ResearchContent
	}

	if t.UserGuidance == "" {
		return t.EnhancedQuery
	}

	if t.EnhancedQuery == "" {
		return t.UserGuidance
	}

	return t.UserGuidance + "\n" + t.EnhancedQuery
}

// Targets returns the topics claim extraction should emphasize.
func (t *Theme) Targets() []string {
	if len(t.ValidationTargets) > 0 {
		return t.ValidationTargets
	}

	var targets []string

	if t.UserGuidance != "" {
		targets = append(targets, t.UserGuidance)
	}

	if t.EnhancedQuery != "" {
		targets = append(targets, t.EnhancedQuery)
	}

	return targets
}

// Theme status constants.
const (
	ThemeStatusPending   = "pending"
	ThemeStatusCompleted = "completed"
)

// ClaimRecord is the persisted form of a claim and its latest validation.
// Manual claims carry an operator-written query that is run as stored
// instead of being generated from the claim descriptors.
type ClaimRecord struct {
	ID              int64
	ThemeID         int64
	RunID           string
	Claim           Claim
	Manual          bool
	ValidationLogic string
	Query           string
	QueryArgs       []any
	Status          ValidationStatus
	Confidence      *float64
	SupportsClaim   *bool
	DataPointsFound int
	Evidence        string
	AnalysisText    string
	ValidatedAt     *time.Time
	CreatedAt       time.Time
}

// ClaimRecordFromResult builds the record stored after validating a claim.
func ClaimRecordFromResult(themeID int64, runID string, r ValidationResult) ClaimRecord {
	confidence := r.Confidence
	supports := r.SupportsClaim
	now := time.Now()

	return ClaimRecord{
		ThemeID:         themeID,
		RunID:           runID,
		Claim:           r.Claim,
		Query:           r.Query,
		QueryArgs:       r.QueryArgs,
		Status:          r.Status,
		Confidence:      &confidence,
		SupportsClaim:   &supports,
		DataPointsFound: r.DataPointsFound,
		Evidence:        r.Evidence,
		AnalysisText:    r.AnalysisText,
		ValidatedAt:     &now,
	}
}

// ToResult converts a stored record back into a validation result.
func (c *ClaimRecord) ToResult() ValidationResult {
	r := ValidationResult{
		ClaimID:         c.ID,
		Claim:           c.Claim,
		Query:           c.Query,
		QueryArgs:       c.QueryArgs,
		DataPointsFound: c.DataPointsFound,
		Evidence:        c.Evidence,
		AnalysisText:    c.AnalysisText,
		Status:          c.Status,
	}

	if c.Confidence != nil {
		r.Confidence = *c.Confidence
	}

	if c.SupportsClaim != nil {
		r.SupportsClaim = *c.SupportsClaim
	}

	return r
}

// ThemeValidationSummary describes the stored claims of one theme.
type ThemeValidationSummary struct {
	ThemeID         int64
	TotalClaims     int
	SupportedClaims int
	AvgConfidence   float64
	LastValidation  *time.Time
	SupportRate     float64
}

// QuarterlySummary describes all themes of one quarter.
type QuarterlySummary struct {
	Quarter                string
	TotalFindings          int
	HighConfidenceFindings int
	AverageConfidence      float64
	CompletedFindings      int
}

package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	coreerrors "github.com/lueurxax/maritime-claim-validator/internal/core/errors"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
)

const twoClaimsJSON = `[
  {"claim_text":"Maersk vessels increased port calls to Rotterdam in Q1 2025","claim_type":"port_frequency","vessel":"Maersk","route":"Rotterdam","period":"2025Q1"},
  {"claim_text":"CO2 per nautical mile fell for MSC","claim_type":"fuel_consumption","vessel":"MSC"}
]`

func newTestValidator(cfg *config.Config, repo *fakeRepo, exec *fakeExecutor, fc *fakeCompleter) *Validator {
	logger := zerolog.Nop()
	return New(cfg, repo, exec, fc, &logger)
}

func failOnFuelQuery(sql string) error {
	if strings.Contains(sql, "\nJOIN v_mrv m") {
		return errTimeout
	}

	return nil
}

func TestValidateFinding_EndToEnd(t *testing.T) {
	theme := testTheme()
	repo := newFakeRepo(theme)
	exec := &fakeExecutor{rows: rowsOf(12)}
	fc := &fakeCompleter{extraction: maerskClaimJSON}

	v := newTestValidator(testConfig(), repo, exec, fc)

	summary, err := v.ValidateTheme(context.Background(), theme.ID)
	require.NoError(t, err)

	assert.Equal(t, theme.ID, summary.ThemeID)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, summary.TotalClaims)
	assert.Equal(t, 1, summary.SupportedClaims)
	assert.InDelta(t, 0.8, summary.OverallConfidence, 1e-9)
	assert.Empty(t, summary.Error)

	require.Len(t, summary.Results, 1)
	r := summary.Results[0]
	assert.Equal(t, domain.StatusValidated, r.Status)
	assert.Equal(t, 12, r.DataPointsFound)
	assert.Equal(t, "12 calls recorded", r.Evidence)
	assert.Equal(t, []any{"%Maersk%", "%Rotterdam%", "2025Q1"}, r.QueryArgs)
	assert.NotZero(t, r.ClaimID)

	assert.Equal(t, []float64{0.8}, repo.confidences[theme.ID])

	stored := repo.claimList()
	require.Len(t, stored, 1)
	assert.Equal(t, summary.RunID, stored[0].RunID)
	assert.Equal(t, r.Query, stored[0].Query)
	require.NotNil(t, stored[0].Confidence)
	assert.InDelta(t, 0.8, *stored[0].Confidence, 1e-9)
	require.NotNil(t, stored[0].ValidatedAt)
}

func TestValidateFinding_QueryFailureRecordedOnClaim(t *testing.T) {
	repo := newFakeRepo(testTheme())
	exec := &fakeExecutor{rows: rowsOf(12), failFor: failOnFuelQuery}
	fc := &fakeCompleter{extraction: twoClaimsJSON}

	v := newTestValidator(testConfig(), repo, exec, fc)

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, domain.StatusValidated, summary.Results[0].Status)

	failed := summary.Results[1]
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Zero(t, failed.Confidence)
	assert.False(t, failed.SupportsClaim)
	assert.True(t, strings.HasPrefix(failed.Error, "query execution failed: "))

	assert.Equal(t, int32(1), fc.analysisCalls.Load(), "failed query must not be analyzed")
	assert.InDelta(t, 0.8, summary.OverallConfidence, 1e-9)
	assert.Equal(t, 2, summary.TotalClaims)
	assert.Equal(t, 1, summary.SupportedClaims)

	stored := repo.claimList()
	require.Len(t, stored, 2)
	assert.Equal(t, domain.StatusFailed, stored[1].Status)
}

func TestValidateFinding_AnalysisFailureKeepsValidatedStatus(t *testing.T) {
	repo := newFakeRepo(testTheme())
	exec := &fakeExecutor{rows: rowsOf(4)}
	fc := &fakeCompleter{
		extraction: maerskClaimJSON,
		analysis:   func(string) (string, error) { return "", errRateLimited },
	}

	v := newTestValidator(testConfig(), repo, exec, fc)

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	r := summary.Results[0]
	assert.Equal(t, domain.StatusValidated, r.Status)
	assert.Zero(t, r.Confidence)
	assert.False(t, r.SupportsClaim)
	assert.Equal(t, 4, r.DataPointsFound)
	assert.Contains(t, r.Limitations, "analysis error: ")
	assert.Zero(t, summary.OverallConfidence)
	assert.Equal(t, []float64{0}, repo.confidences[7])
}

func TestValidateFinding_NothingExtracted(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{name: "empty array", fc: &fakeCompleter{extraction: "[]"}},
		{name: "completion error", fc: &fakeCompleter{extractionErr: errRateLimited}},
		{name: "prose reply", fc: &fakeCompleter{extraction: "I cannot find any claims."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(testTheme())
			exec := &fakeExecutor{}

			v := newTestValidator(testConfig(), repo, exec, tt.fc)

			summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
			require.NoError(t, err)

			assert.Zero(t, summary.TotalClaims)
			assert.Zero(t, summary.OverallConfidence)
			assert.Empty(t, summary.Results)
			assert.Empty(t, exec.queries)
			assert.Empty(t, repo.claimList())
			assert.Equal(t, []float64{0}, repo.confidences[7])
		})
	}
}

func TestValidateFinding_NothingExtractedClearsPreviousRun(t *testing.T) {
	repo := newFakeRepo(testTheme())
	v := newTestValidator(testConfig(), repo, &fakeExecutor{rows: rowsOf(5)}, &fakeCompleter{extraction: maerskClaimJSON})

	_, err := v.ValidateTheme(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, repo.claimList(), 1)

	v.extractor = NewClaimExtractor(&fakeCompleter{extraction: "[]"}, 10, nil)

	summary, err := v.ValidateTheme(context.Background(), 7)
	require.NoError(t, err)

	assert.Zero(t, summary.TotalClaims)
	assert.Empty(t, repo.claimList())
	assert.Equal(t, []float64{0.8, 0}, repo.confidences[7])

	got, err := v.RecomputeThemeConfidence(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestValidateTheme_RerunReplacesClaims(t *testing.T) {
	repo := newFakeRepo(testTheme())

	var calls atomic.Int32

	fc := &fakeCompleter{
		extraction: maerskClaimJSON,
		analysis: func(string) (string, error) {
			if calls.Add(1) == 1 {
				return analysisSupported, nil
			}

			return "SUPPORT: Yes\nCONFIDENCE: 0.2", nil
		},
	}

	v := newTestValidator(testConfig(), repo, &fakeExecutor{rows: rowsOf(5)}, fc)

	first, err := v.ValidateTheme(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, first.OverallConfidence, 1e-9)

	second, err := v.ValidateTheme(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, second.OverallConfidence, 1e-9)

	stored := repo.claimList()
	require.Len(t, stored, 1)
	assert.Equal(t, second.RunID, stored[0].RunID)

	got, err := v.RecomputeThemeConfidence(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-9)
}

func TestValidateFinding_RevalidatesManualClaims(t *testing.T) {
	repo := newFakeRepo(testTheme())
	manualID := seedManualClaim(t, repo, 7)

	exec := &fakeExecutor{rows: rowsOf(3)}
	v := newTestValidator(testConfig(), repo, exec, &fakeCompleter{extraction: maerskClaimJSON})

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, manualID, summary.Results[1].ClaimID)
	assert.Equal(t, manualQuery, summary.Results[1].Query)
	assert.Equal(t, []string{manualQuery}, exec.custom)
	assert.Len(t, exec.queries, 1)

	rec, err := repo.GetClaim(context.Background(), manualID)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, rec.RunID)
	assert.Equal(t, domain.StatusValidated, rec.Status)
	assert.Len(t, repo.claimList(), 2)
}

func TestValidateFinding_ClearFailure(t *testing.T) {
	repo := newFakeRepo(testTheme())
	repo.deleteErr = errDBDown

	exec := &fakeExecutor{rows: rowsOf(3)}
	v := newTestValidator(testConfig(), repo, exec, &fakeCompleter{extraction: maerskClaimJSON})

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)

	require.ErrorIs(t, err, errDBDown)
	assert.Contains(t, summary.Error, errDBDown.Error())
	assert.Empty(t, exec.queries)
	assert.Empty(t, repo.confidences[7])
}

func TestValidateFinding_StoreFailureMarksClaimFailed(t *testing.T) {
	repo := newFakeRepo(testTheme())
	repo.storeErr = errDBDown

	v := newTestValidator(testConfig(), repo, &fakeExecutor{rows: rowsOf(3)}, &fakeCompleter{extraction: maerskClaimJSON})

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, domain.StatusFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "storing claim")
	assert.Zero(t, summary.OverallConfidence)
}

func TestValidateFinding_ConfidenceUpdateFailure(t *testing.T) {
	repo := newFakeRepo(testTheme())
	repo.updateErr = errDBDown

	v := newTestValidator(testConfig(), repo, &fakeExecutor{rows: rowsOf(3)}, &fakeCompleter{extraction: maerskClaimJSON})

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errDBDown))
	require.NotNil(t, summary)
	assert.Zero(t, summary.OverallConfidence)
	assert.Contains(t, summary.Error, errDBDown.Error())
	assert.Empty(t, summary.Results)
	assert.Len(t, repo.claimList(), 1, "claims are stored before the aggregate")
}

var claimNumber = regexp.MustCompile(`Original Claim: claim (\d+)`)

func TestValidateFinding_WorkersKeepClaimOrder(t *testing.T) {
	var sb strings.Builder

	sb.WriteString("[")

	for i := 0; i < 6; i++ {
		if i > 0 {
			sb.WriteString(",")
		}

		fmt.Fprintf(&sb, `{"claim_text":"claim %d","claim_type":"vessel_movement","vessel":"Vessel %d"}`, i, i)
	}

	sb.WriteString("]")

	cfg := testConfig()
	cfg.ValidationWorkers = 4

	repo := newFakeRepo(testTheme())
	fc := &fakeCompleter{
		extraction: sb.String(),
		analysis: func(user string) (string, error) {
			m := claimNumber.FindStringSubmatch(user)
			n, _ := strconv.Atoi(m[1])

			return fmt.Sprintf("SUPPORT: Yes\nCONFIDENCE: 0.%d", n+1), nil
		},
	}

	v := newTestValidator(cfg, repo, &fakeExecutor{rows: rowsOf(2)}, fc)

	summary, err := v.ValidateFinding(context.Background(), 7, "2025Q1", "narrative", nil)
	require.NoError(t, err)

	require.Len(t, summary.Results, 6)

	ids := make(map[int64]bool)

	for i, r := range summary.Results {
		assert.Equal(t, fmt.Sprintf("claim %d", i), r.Claim.Text)
		assert.InDelta(t, float64(i+1)/10, r.Confidence, 1e-9)
		assert.False(t, ids[r.ClaimID], "duplicate claim id %d", r.ClaimID)
		ids[r.ClaimID] = true
	}

	assert.Len(t, repo.claimList(), 6)
	assert.Equal(t, int32(6), fc.analysisCalls.Load())
}

func TestValidateTheme_NotFound(t *testing.T) {
	v := newTestValidator(testConfig(), newFakeRepo(), &fakeExecutor{}, &fakeCompleter{})

	summary, err := v.ValidateTheme(context.Background(), 99)

	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.ErrThemeNotFound))
	assert.Equal(t, int64(99), summary.ThemeID)
	assert.NotEmpty(t, summary.Error)
}

func TestValidateTheme_FallsBackToThemeQuarter(t *testing.T) {
	theme := testTheme()
	theme.Quarter = "2024Q3"

	exec := &fakeExecutor{rows: rowsOf(1)}
	fc := &fakeCompleter{extraction: `[{"claim_text":"Evergreen ships moved east","claim_type":"vessel_movement","vessel":"Evergreen"}]`}

	v := newTestValidator(testConfig(), newFakeRepo(theme), exec, fc)

	_, err := v.ValidateTheme(context.Background(), theme.ID)
	require.NoError(t, err)

	require.Len(t, exec.args, 1)
	assert.Equal(t, []any{"%Evergreen%", "2024Q3"}, exec.args[0])
}

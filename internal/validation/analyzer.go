package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/llm"
)

const (
	maxAnalyzedRows   = 10
	neutralConfidence = 0.5
	noMatchingData    = "No matching data found"
	supportNo         = "No"
)

const analysisSystemPrompt = `You are a maritime data analyst validating research claims against vessel traffic data.

Analyze the database results and determine:
1. Does the data support the claim? (Yes/No/Partially)
2. Confidence level (0.0 to 1.0)
3. Key evidence from the data
4. Any contradictions or data limitations

Be objective and quantitative in your analysis.
When validation logic is given, use it to understand what the query measures.`

const analysisUserPromptFmt = `Original Claim: %s
%s
Database Query Results (%d records):
%s

Analyze whether the data supports this claim and provide:
- Support Level: Yes/No/Partially
- Confidence: 0.0-1.0
- Evidence: Key supporting data points
- Limitations: Any data gaps or contradictions

Format as:
SUPPORT: [Yes/No/Partially]
CONFIDENCE: [0.0-1.0]
EVIDENCE: [Key supporting evidence]
LIMITATIONS: [Any limitations or contradictions]`

// Analyzer asks the completion capability for a verdict on one claim.
type Analyzer struct {
	llm    llm.Completer
	logger *zerolog.Logger
}

func NewAnalyzer(completer llm.Completer, logger *zerolog.Logger) *Analyzer {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &Analyzer{llm: completer, logger: logger}
}

// Analyze always returns an analysis. A failed completion yields zero
// confidence and no support with the error as limitations, which differs
// from the neutral 0.5 used when only the confidence field is unreadable.
func (a *Analyzer) Analyze(ctx context.Context, claim domain.Claim, rows domain.ResultSet) domain.Analysis {
	return a.AnalyzeWithLogic(ctx, claim, "", rows)
}

// AnalyzeWithLogic is Analyze with an operator's description of what the
// query measures added to the prompt.
func (a *Analyzer) AnalyzeWithLogic(ctx context.Context, claim domain.Claim, logic string, rows domain.ResultSet) domain.Analysis {
	logicBlock := ""
	if logic = strings.TrimSpace(logic); logic != "" {
		logicBlock = "\nValidation Logic: " + logic + "\n"
	}

	user := fmt.Sprintf(analysisUserPromptFmt, claim.Text, logicBlock, rows.Len(), FormatResults(rows))

	res, err := a.llm.Complete(ctx, analysisSystemPrompt, user)
	if err != nil {
		a.logger.Error().Err(err).Str("claim_type", string(claim.Type)).Msg("claim analysis failed")

		reason := "analysis error: " + err.Error()

		return domain.Analysis{
			Support:      supportNo,
			Confidence:   0,
			Limitations:  reason,
			AnalysisText: reason,
			DataPoints:   rows.Len(),
		}
	}

	analysis := ParseAnalysis(res)
	analysis.DataPoints = rows.Len()

	return analysis
}

var (
	supportPattern     = regexp.MustCompile(`(?im)^\W*SUPPORT(?:\s+LEVEL)?\W*:\s*(.+?)\s*$`)
	confidencePattern  = regexp.MustCompile(`(?im)^\W*CONFIDENCE\W*:\s*(.+?)\s*$`)
	evidencePattern    = regexp.MustCompile(`(?is)(?:^|\n)\W*EVIDENCE\W*:\s*(.+?)\s*(?:\n\W*(?:LIMITATIONS|SUMMARY)\W*:|$)`)
	limitationsPattern = regexp.MustCompile(`(?im)^\W*(?:LIMITATIONS|SUMMARY)\W*:\s*(.+?)\s*$`)
	leadingNumber      = regexp.MustCompile(`^-?[0-9]*\.?[0-9]+`)
)

// ParseAnalysis reads the SUPPORT, CONFIDENCE, EVIDENCE and LIMITATIONS (or
// SUMMARY) lines of a reply. Missing support means "No"; missing or
// unreadable confidence means 0.5; confidence is clamped to [0, 1].
func ParseAnalysis(text string) domain.Analysis {
	analysis := domain.Analysis{
		Support:      supportNo,
		Confidence:   neutralConfidence,
		AnalysisText: text,
	}

	if m := supportPattern.FindStringSubmatch(text); m != nil {
		analysis.Support = strings.Trim(m[1], "*_`[] .,;:!")
	}

	analysis.SupportsClaim = supportsClaim(analysis.Support)

	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		analysis.Confidence = parseConfidence(m[1])
	}

	if m := evidencePattern.FindStringSubmatch(text); m != nil {
		analysis.Evidence = strings.TrimSpace(m[1])
	}

	if m := limitationsPattern.FindStringSubmatch(text); m != nil {
		analysis.Limitations = cleanLabelValue(m[1])
	}

	return analysis
}

// supportsClaim maps Yes and Partially to true.
func supportsClaim(support string) bool {
	s := strings.ToLower(strings.TrimSpace(support))

	return strings.HasPrefix(s, "yes") || strings.HasPrefix(s, "partial")
}

func parseConfidence(raw string) float64 {
	raw = cleanLabelValue(raw)

	num := leadingNumber.FindString(raw)
	if num == "" {
		return neutralConfidence
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return neutralConfidence
	}

	if strings.HasPrefix(strings.TrimSpace(raw[len(num):]), "%") {
		v /= 100
	}

	return clamp01(v)
}

// cleanLabelValue drops markdown emphasis and the brackets of the prompt's
// own "[Yes/No/Partially]" format line.
func cleanLabelValue(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "*_`[] "))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FormatResults renders the column header and the first ten rows.
func FormatResults(rows domain.ResultSet) string {
	if rows.Len() == 0 {
		return noMatchingData
	}

	var sb strings.Builder

	if len(rows.Columns) > 0 {
		sb.WriteString("Columns: ")
		sb.WriteString(strings.Join(rows.Columns, ", "))
		sb.WriteString("\n")
	}

	for i, row := range rows.Rows {
		if i == maxAnalyzedRows {
			break
		}

		fmt.Fprintf(&sb, "Record %d: %s\n", i+1, formatRow(row))
	}

	if rows.Len() > maxAnalyzedRows {
		fmt.Fprintf(&sb, "... and %d more records\n", rows.Len()-maxAnalyzedRows)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatRow(row []any) string {
	parts := make([]string, len(row))

	for i, v := range row {
		parts[i] = formatValue(v)
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

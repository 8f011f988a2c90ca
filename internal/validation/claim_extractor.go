package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/llm"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
)

const (
	defaultMaxClaims      = 10
	maxKeywordClaims      = 5
	minKeywordClaimLength = 20
	maxNarrativeRunes     = 12000
	responsePreviewLength = 200
)

// Decoding strategies, in the order they are attempted.
const (
	strategyDirect    = "direct"
	strategyExtracted = "extracted"
	strategyKeyword   = "keyword"
	strategyNone      = "none"
)

const extractionSystemPrompt = `You are a maritime data analyst expert at extracting verifiable claims from research.

CRITICAL: You must respond with ONLY valid JSON - no explanations, no markdown, no additional text.

Extract specific claims that mention:
- Vessel names, shipping lines, or fleet data
- Route changes, port patterns, or corridor shifts
- Measurable impacts (percentages, volumes, times, costs)
- Time periods (quarters, years, specific dates)

Claim types:
- vessel_movement: vessel location/route changes
- route_pattern: service modifications, corridor shifts
- port_frequency: changes in port calls
- transit_time: voyage duration changes
- fuel_consumption: fuel use, CO2 or emission variations

Use a 7-digit IMO number for "vessel" when the text gives one. Write periods as YYYYQn, YYYY or a date.

Response format: JSON array only, no other text.`

const extractionUserPromptFmt = `Research content:
%s

Validation targets: %s

Extract verifiable claims as JSON array. Include claims with specific vessels, routes, percentages, or measurable changes:

[
  {
    "claim_text": "exact quote from research",
    "claim_type": "vessel_movement",
    "vessel": "vessel/company name or null",
    "route": "Origin -> Destination, Region-Region, single port/region, or null",
    "period": "time period or null",
    "metric": "what is measured or null",
    "expected_change": "increase/decrease/pattern or null"
  }
]`

// ClaimExtractor turns research narrative into structured claims.
type ClaimExtractor struct {
	llm       llm.Completer
	maxClaims int
	logger    *zerolog.Logger
}

func NewClaimExtractor(completer llm.Completer, maxClaims int, logger *zerolog.Logger) *ClaimExtractor {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	if maxClaims <= 0 {
		maxClaims = defaultMaxClaims
	}

	return &ClaimExtractor{
		llm:       completer,
		maxClaims: maxClaims,
		logger:    logger,
	}
}

// Extract never fails: a completion error or an undecodable reply yields
// an empty slice, which callers treat as "nothing to validate".
func (e *ClaimExtractor) Extract(ctx context.Context, narrative string, targets []string) []domain.Claim {
	narrative = strings.TrimSpace(narrative)
	if narrative == "" {
		return nil
	}

	user := fmt.Sprintf(extractionUserPromptFmt, truncateRunes(narrative, maxNarrativeRunes), formatTargets(targets))

	res, err := e.llm.Complete(ctx, extractionSystemPrompt, user)
	if err != nil {
		e.logger.Error().Err(err).Msg("claim extraction completion failed")

		return nil
	}

	claims, strategy := DecodeClaims(res)
	claims = e.finalize(claims)

	observability.ClaimsExtracted.WithLabelValues(strategy).Add(float64(len(claims)))

	if strategy != strategyDirect {
		e.logger.Warn().
			Str("strategy", strategy).
			Str("response", truncateRunes(res, responsePreviewLength)).
			Msg("claim response was not plain JSON")
	}

	e.logger.Info().Int("claims", len(claims)).Str("strategy", strategy).Msg("extracted verifiable claims")

	return claims
}

func (e *ClaimExtractor) finalize(claims []domain.Claim) []domain.Claim {
	out := make([]domain.Claim, 0, len(claims))

	for _, c := range claims {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}

		c.Period = NormalizePeriod(c.Period)
		out = append(out, c)

		if len(out) == e.maxClaims {
			break
		}
	}

	return out
}

// DecodeClaims applies the decoding strategies in order and reports which
// one produced the claims:
//   - direct: the whole reply is a JSON array or object
//   - extracted: the first well-formed JSON substring after fence stripping
//   - keyword: quoted phrases with maritime keywords, at most five
func DecodeClaims(res string) ([]domain.Claim, string) {
	if claims, ok := unmarshalClaims(strings.TrimSpace(res)); ok {
		return claims, strategyDirect
	}

	if extracted, found := llm.ExtractJSON(res); found {
		if claims, ok := unmarshalClaims(extracted); ok {
			return claims, strategyExtracted
		}
	}

	if claims := keywordClaims(res); len(claims) > 0 {
		return claims, strategyKeyword
	}

	return nil, strategyNone
}

// unmarshalClaims accepts an array of claims, a single claim object, or an
// object wrapping the array under "claims".
func unmarshalClaims(data string) ([]domain.Claim, bool) {
	if data == "" {
		return nil, false
	}

	switch data[0] {
	case '[':
		var claims []domain.Claim
		if err := json.Unmarshal([]byte(data), &claims); err != nil {
			return nil, false
		}

		return claims, true
	case '{':
		var wrapper struct {
			Claims []domain.Claim `json:"claims"`
		}

		if err := json.Unmarshal([]byte(data), &wrapper); err == nil && wrapper.Claims != nil {
			return wrapper.Claims, true
		}

		var claim domain.Claim
		if err := json.Unmarshal([]byte(data), &claim); err != nil {
			return nil, false
		}

		return []domain.Claim{claim}, true
	default:
		return nil, false
	}
}

var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"([^"]*(?:vessel|ship|container|route|port|transit|cargo)[^"]*)"`),
	regexp.MustCompile(`(?i)"([^"]*(?:increase|decrease|change|impact|reduction)[^"]*)"`),
	regexp.MustCompile(`(?i)"([^"]*(?:Maersk|MSC|COSCO|CMA|Evergreen)[^"]*)"`),
	regexp.MustCompile(`(?i)"([^"]*(?:Suez|Red Sea|Mediterranean|Asia|Europe)[^"]*)"`),
}

// keywordClaims synthesizes claims from quoted phrases when no JSON decodes.
func keywordClaims(text string) []domain.Claim {
	var claims []domain.Claim

	seen := make(map[string]struct{})

	for _, pattern := range keywordPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			phrase := m[1]
			if utf8.RuneCountInString(phrase) <= minKeywordClaimLength {
				continue
			}

			if _, dup := seen[phrase]; dup {
				continue
			}

			seen[phrase] = struct{}{}
			claims = append(claims, domain.Claim{Text: phrase, Type: classifyPhrase(phrase)})

			if len(claims) == maxKeywordClaims {
				return claims
			}
		}
	}

	return claims
}

var phraseClasses = []struct {
	claimType domain.ClaimType
	words     []string
}{
	{domain.ClaimTypeVesselMovement, []string{"vessel", "ship", "fleet"}},
	{domain.ClaimTypeRoutePattern, []string{"route", "corridor", "service"}},
	{domain.ClaimTypePortFrequency, []string{"port", "terminal", "hub"}},
	{domain.ClaimTypeTransitTime, []string{"transit", "time", "duration"}},
	{domain.ClaimTypeFuelConsumption, []string{"co2", "carbon", "emission", "fuel"}},
}

func classifyPhrase(phrase string) domain.ClaimType {
	lower := strings.ToLower(phrase)

	for _, class := range phraseClasses {
		for _, word := range class.words {
			if strings.Contains(lower, word) {
				return class.claimType
			}
		}
	}

	return domain.ClaimTypeGeneral
}

func formatTargets(targets []string) string {
	kept := nonEmpty(targets)
	if len(kept) == 0 {
		return "none specified"
	}

	return strings.Join(kept, "; ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	return string([]rune(s)[:max]) + "..."
}

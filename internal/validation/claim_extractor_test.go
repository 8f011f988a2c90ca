package validation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/core/llm"
)

const maerskClaimJSON = `[{
  "claim_text": "Maersk vessels increased port calls to Rotterdam in Q1 2025",
  "claim_type": "port_frequency",
  "vessel": "Maersk",
  "route": "Rotterdam",
  "period": "Q1 2025",
  "metric": "port calls",
  "expected_change": "increase"
}]`

func newTestExtractor(response string, err error) (*ClaimExtractor, *fakeCompleter) {
	logger := zerolog.Nop()
	fc := &fakeCompleter{extraction: response, extractionErr: err}

	return NewClaimExtractor(fc, 10, &logger), fc
}

func TestClaimExtractor_PortFrequencyScenario(t *testing.T) {
	e, fc := newTestExtractor(maerskClaimJSON, nil)

	claims := e.Extract(context.Background(), "Maersk vessels increased port calls to Rotterdam in Q1 2025", []string{"port frequency"})

	require.Len(t, claims, 1)
	assert.Equal(t, domain.ClaimTypePortFrequency, claims[0].Type)
	assert.Contains(t, claims[0].Vessel, "Maersk")
	assert.Equal(t, "2025Q1", claims[0].Period)
	assert.Equal(t, "increase", claims[0].ExpectedChange)
	assert.Equal(t, int32(1), fc.extractCalls.Load())

	q := NewQueryGenerator("2025Q1").Generate(claims[0], "")
	assert.Contains(t, q.Args, "%Maersk%")
	assert.Contains(t, q.Args, "2025Q1")
}

func TestClaimExtractor_PromptCarriesNarrativeAndTargets(t *testing.T) {
	logger := zerolog.Nop()

	var gotUser string

	fc := func(_ context.Context, _, user string) (string, error) {
		gotUser = user
		return "[]", nil
	}

	e := NewClaimExtractor(llm.CompleterFunc(fc), 10, &logger)
	claims := e.Extract(context.Background(), "Transit times via the Cape rose.", []string{"transit time", "", "Cape route"})

	assert.Empty(t, claims)
	assert.Contains(t, gotUser, "Transit times via the Cape rose.")
	assert.Contains(t, gotUser, "Validation targets: transit time; Cape route")
}

func TestClaimExtractor_Fallbacks(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantTexts []string
		wantTypes []domain.ClaimType
	}{
		{
			name:      "code fence",
			response:  "```json\n" + `[{"claim_text":"MSC shifted services to the Cape","claim_type":"route_pattern"}]` + "\n```",
			wantTexts: []string{"MSC shifted services to the Cape"},
			wantTypes: []domain.ClaimType{domain.ClaimTypeRoutePattern},
		},
		{
			name:      "preamble and single object",
			response:  `Here is the claim: {"claim_text":"CO2 per nm fell 5%","claim_type":"co2_emissions"} Thanks.`,
			wantTexts: []string{"CO2 per nm fell 5%"},
			wantTypes: []domain.ClaimType{domain.ClaimTypeFuelConsumption},
		},
		{
			name:      "wrapped claims object",
			response:  `{"claims":[{"claim_text":"Transit Shanghai to Rotterdam took 40 days","claim_type":"transit time"}]}`,
			wantTexts: []string{"Transit Shanghai to Rotterdam took 40 days"},
			wantTypes: []domain.ClaimType{domain.ClaimTypeTransitTime},
		},
		{
			name: "keyword fallback",
			response: `I could not format JSON. Notable: "Maersk fleet rerouted around the Cape of Good Hope", ` +
				`"Suez Canal corridor volumes collapsed", "short", "Average transit duration grew by a week"`,
			wantTexts: []string{
				"Maersk fleet rerouted around the Cape of Good Hope",
				"Average transit duration grew by a week",
				"Suez Canal corridor volumes collapsed",
			},
			wantTypes: []domain.ClaimType{
				domain.ClaimTypeVesselMovement,
				domain.ClaimTypeTransitTime,
				domain.ClaimTypeRoutePattern,
			},
		},
		{
			name:     "nothing usable",
			response: "I am unable to help with that.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestExtractor(tt.response, nil)
			claims := e.Extract(context.Background(), "narrative", nil)

			require.Len(t, claims, len(tt.wantTexts))

			for i, c := range claims {
				assert.Equal(t, tt.wantTexts[i], c.Text)
				assert.Equal(t, tt.wantTypes[i], c.Type)
			}
		})
	}
}

func TestDecodeClaims_Strategies(t *testing.T) {
	_, strategy := DecodeClaims(maerskClaimJSON)
	assert.Equal(t, strategyDirect, strategy)

	_, strategy = DecodeClaims("Sure!\n" + maerskClaimJSON)
	assert.Equal(t, strategyExtracted, strategy)

	_, strategy = DecodeClaims(`"Vessel arrivals at Piraeus increased sharply"`)
	assert.Equal(t, strategyKeyword, strategy)

	claims, strategy := DecodeClaims("no")
	assert.Equal(t, strategyNone, strategy)
	assert.Empty(t, claims)
}

func TestKeywordClaims_CapAndDedupe(t *testing.T) {
	var sb strings.Builder

	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, `"Container vessel number %d changed its rotation" `, i)
	}

	sb.WriteString(`"Container vessel number 0 changed its rotation"`)

	claims := keywordClaims(sb.String())

	require.Len(t, claims, maxKeywordClaims)

	seen := map[string]bool{}
	for _, c := range claims {
		assert.False(t, seen[c.Text], "duplicate %q", c.Text)
		seen[c.Text] = true
	}
}

func TestClassifyPhrase(t *testing.T) {
	tests := map[string]domain.ClaimType{
		"ship deployments doubled":        domain.ClaimTypeVesselMovement,
		"the corridor was abandoned":      domain.ClaimTypeRoutePattern,
		"terminal congestion eased":       domain.ClaimTypePortFrequency,
		"waiting duration grew":           domain.ClaimTypeTransitTime,
		"carbon intensity improved":       domain.ClaimTypeFuelConsumption,
		"freight rates increased sharply": domain.ClaimTypeGeneral,
		"vessel emissions rose":           domain.ClaimTypeVesselMovement,
	}

	for phrase, want := range tests {
		assert.Equal(t, want, classifyPhrase(phrase), phrase)
	}
}

func TestClaimExtractor_CompletionErrorYieldsEmpty(t *testing.T) {
	e, _ := newTestExtractor("", errRateLimited)

	claims := e.Extract(context.Background(), "Maersk vessels increased port calls", nil)

	assert.Empty(t, claims)
}

func TestClaimExtractor_EmptyNarrativeSkipsCompletion(t *testing.T) {
	e, fc := newTestExtractor(maerskClaimJSON, nil)

	assert.Empty(t, e.Extract(context.Background(), "   ", nil))
	assert.Equal(t, int32(0), fc.extractCalls.Load())
}

func TestClaimExtractor_DropsEmptyAndCaps(t *testing.T) {
	var sb strings.Builder

	sb.WriteString(`[{"claim_text":"  ","claim_type":"general"}`)

	for i := 0; i < 15; i++ {
		fmt.Fprintf(&sb, `,{"claim_text":"claim %d","claim_type":"vessel_movement","vessel":null}`, i)
	}

	sb.WriteString("]")

	logger := zerolog.Nop()
	fc := &fakeCompleter{extraction: sb.String()}
	e := NewClaimExtractor(fc, 10, &logger)

	claims := e.Extract(context.Background(), "narrative", nil)

	require.Len(t, claims, 10)
	assert.Equal(t, "claim 0", claims[0].Text)
	assert.Empty(t, claims[0].Vessel)
}

func TestClaimExtractor_LooseDescriptors(t *testing.T) {
	e, _ := newTestExtractor(`[{"claim_text":"IMO 9321483 called Hamburg","claim_type":"Vessel Movement","vessel":9321483,"route":"null","period":2024}]`, nil)

	claims := e.Extract(context.Background(), "narrative", nil)

	require.Len(t, claims, 1)
	assert.Equal(t, domain.ClaimTypeVesselMovement, claims[0].Type)
	assert.Equal(t, "9321483", claims[0].Vessel)
	assert.Empty(t, claims[0].Route)
	assert.Equal(t, "2024", claims[0].Period)
}

func TestClaimExtractor_Idempotent(t *testing.T) {
	e, _ := newTestExtractor("Result:\n"+maerskClaimJSON, nil)

	first := e.Extract(context.Background(), "same narrative", []string{"port frequency"})
	second := e.Extract(context.Background(), "same narrative", []string{"port frequency"})

	assert.Equal(t, first, second)
}

func TestClaimExtractor_OfflineCompleterYieldsKeywordClaims(t *testing.T) {
	logger := zerolog.Nop()
	e := NewClaimExtractor(llm.NewMock(&logger), 10, &logger)

	narrative := "Maersk vessels increased port calls to Rotterdam in Q1 2025. " +
		`Average transit time on the "container ship route via Suez" rose.`

	claims := e.Extract(context.Background(), narrative, []string{"port frequency"})

	require.Len(t, claims, 2)
	assert.Equal(t, "Maersk vessels increased port calls to Rotterdam in Q1 2025", claims[0].Text)
	assert.Equal(t, domain.ClaimTypeVesselMovement, claims[0].Type)
	assert.Equal(t, "Average transit time on the container ship route via Suez rose", claims[1].Text)
}

package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ClaimType is the closed set of claim categories a query template exists for.
type ClaimType string

// Claim type constants.
const (
	ClaimTypeVesselMovement  ClaimType = "vessel_movement"
	ClaimTypeRoutePattern    ClaimType = "route_pattern"
	ClaimTypePortFrequency   ClaimType = "port_frequency"
	ClaimTypeTransitTime     ClaimType = "transit_time"
	ClaimTypeFuelConsumption ClaimType = "fuel_consumption"
	ClaimTypeGeneral         ClaimType = "general"
)

// ParseClaimType maps a free-text category onto the closed set.
// Unknown values resolve to ClaimTypeGeneral.
func ParseClaimType(s string) ClaimType {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	switch normalized {
	case string(ClaimTypeVesselMovement):
		return ClaimTypeVesselMovement
	case string(ClaimTypeRoutePattern):
		return ClaimTypeRoutePattern
	case string(ClaimTypePortFrequency):
		return ClaimTypePortFrequency
	case string(ClaimTypeTransitTime):
		return ClaimTypeTransitTime
	case string(ClaimTypeFuelConsumption), "co2_emissions", "emissions", "co2":
		return ClaimTypeFuelConsumption
	default:
		return ClaimTypeGeneral
	}
}

// Claim is a single verifiable assertion extracted from research narrative.
// Empty optional fields mean the descriptor is absent.
type Claim struct {
	Text           string    `json:"claim_text"`
	Type           ClaimType `json:"claim_type"`
	Vessel         string    `json:"vessel,omitempty"`
	Route          string    `json:"route,omitempty"`
	Period         string    `json:"period,omitempty"`
	Metric         string    `json:"metric,omitempty"`
	ExpectedChange string    `json:"expected_change,omitempty"`
}

// UnmarshalJSON accepts the loose shapes language models produce: numeric
// vessel identifiers, null or "null" descriptors, and free-form claim types.
func (c *Claim) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text           looseString `json:"claim_text"`
		Type           looseString `json:"claim_type"`
		Vessel         looseString `json:"vessel"`
		Route          looseString `json:"route"`
		Period         looseString `json:"period"`
		Metric         looseString `json:"metric"`
		ExpectedChange looseString `json:"expected_change"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err //nolint:wrapcheck
	}

	*c = Claim{
		Text:           string(raw.Text),
		Type:           ParseClaimType(string(raw.Type)),
		Vessel:         string(raw.Vessel),
		Route:          string(raw.Route),
		Period:         string(raw.Period),
		Metric:         string(raw.Metric),
		ExpectedChange: string(raw.ExpectedChange),
	}

	return nil
}

// looseString decodes strings, numbers and null into a trimmed string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = ""
		return nil
	}

	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err //nolint:wrapcheck
		}

		*s = looseString(cleanDescriptor(v))

		return nil
	}

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		*s = looseString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}

	// Objects and arrays carry no usable descriptor.
	*s = ""

	return nil
}

func cleanDescriptor(v string) string {
	v = strings.TrimSpace(v)

	switch strings.ToLower(v) {
	case "null", "none", "n/a", "na", "unknown", "-":
		return ""
	}

	return v
}

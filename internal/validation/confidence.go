package validation

import (
	"math"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
)

const (
	dataPointWeight   = 0.1
	baseWeight        = 1.0
	maxDataWeight     = 3.0
	supportMultiplier = 1.5
)

// ClaimWeight is min(rows*0.1+1, 3), times 1.5 when the claim is supported.
func ClaimWeight(dataPoints int, supports bool) float64 {
	weight := math.Min(float64(dataPoints)*dataPointWeight+baseWeight, maxDataWeight)
	if supports {
		weight *= supportMultiplier
	}

	return weight
}

// AggregateConfidence is the weighted mean confidence of validated results,
// clamped to [0, 1]. Failed results carry no weight; with nothing validated
// the result is 0.
func AggregateConfidence(results []domain.ValidationResult) float64 {
	var weighted, total float64

	for _, r := range results {
		if r.Status != domain.StatusValidated {
			continue
		}

		w := ClaimWeight(r.DataPointsFound, r.SupportsClaim)
		weighted += r.Confidence * w
		total += w
	}

	if total == 0 {
		return 0
	}

	return clamp01(weighted / total)
}

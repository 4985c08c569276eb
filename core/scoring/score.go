// Package scoring computes the normalized action score that ranks customers
// for the allocator.
package scoring

import (
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/salesintel/core/model"
)

// Weights define the composite action score. The composite is the predicted
// expansion revenue plus weighted urgency, fit and relationship signals.
type Weights struct {
	Revenue      float64 `json:"revenue"`
	DemoRequests float64 `json:"demo_requests"`
	CloudFit     float64 `json:"cloud_maturity"`
	Relationship float64 `json:"csm_relationship"`
}

// DefaultWeights returns the weights used by the demonstration pipeline.
func DefaultWeights() Weights {
	return Weights{Revenue: 1, DemoRequests: 5, CloudFit: 2, Relationship: 1.5}
}

// Raw returns the unnormalized composite for c.
func (w Weights) Raw(c model.Customer) float64 {
	return c.PredictedExpansionRevenue*w.Revenue +
		c.DemoRequests*w.DemoRequests +
		c.CloudMaturityScore*w.CloudFit +
		c.CSMRelationshipScore*w.Relationship
}

// Normalize rescales values to [0, 100] in place using min-max scaling. When
// all values are equal every value becomes 0.
func Normalize(values []float64) {
	if len(values) == 0 {
		return
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			values[i] = 0
			continue
		}
		values[i] = (v - lo) / span * 100
	}
}

// Apply computes and stores the normalized action score of every customer.
func Apply(w Weights, customers []model.Customer) {
	scores := make([]float64, len(customers))
	for i, c := range customers {
		scores[i] = w.Raw(c)
	}
	Normalize(scores)
	for i := range customers {
		customers[i].ActionScore = scores[i]
	}
}

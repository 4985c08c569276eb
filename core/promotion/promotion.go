// Package promotion recommends the commercial incentive a customer is most
// sensitive to.
package promotion

import "github.com/kilianp07/salesintel/core/model"

// Kind identifies a promotion.
type Kind int

const (
	PriceDiscount Kind = iota
	ExtendedSLA
	TrainingCredits
	ImplementationSupport
)

// All lists promotions in recommendation index order.
var All = []Kind{PriceDiscount, ExtendedSLA, TrainingCredits, ImplementationSupport}

// String returns the offer wording shown to account executives.
func (k Kind) String() string {
	switch k {
	case PriceDiscount:
		return "Price Discount (15-20%)"
	case ExtendedSLA:
		return "Extended SLA (99.99% uptime)"
	case TrainingCredits:
		return "Training Credits ($10K)"
	case ImplementationSupport:
		return "Implementation Support (40 hours)"
	default:
		return "unknown"
	}
}

// Label is the short chart label for the promotion.
func (k Kind) Label() string {
	switch k {
	case PriceDiscount:
		return "Price Discount"
	case ExtendedSLA:
		return "Extended SLA"
	case TrainingCredits:
		return "Training Credits"
	case ImplementationSupport:
		return "Implementation Support"
	default:
		return "unknown"
	}
}

// Sensitivity pairs a promotion with the customer's responsiveness to it.
type Sensitivity struct {
	Promotion Kind    `json:"-"`
	Label     string  `json:"promotion"`
	Score     float64 `json:"score"`
}

// Sensitivities returns the four sensitivities of c in index order.
func Sensitivities(c model.Customer) []Sensitivity {
	vals := []float64{
		c.DiscountSensitivity,
		c.SLASensitivity,
		c.TrainingSensitivity,
		c.ImplementationSupportSensitivity,
	}
	out := make([]Sensitivity, len(All))
	for i, k := range All {
		out[i] = Sensitivity{Promotion: k, Label: k.Label(), Score: vals[i]}
	}
	return out
}

// Recommend returns the promotion with the highest sensitivity. The first one
// wins on ties.
func Recommend(c model.Customer) Kind {
	best := PriceDiscount
	bestScore := c.DiscountSensitivity
	for _, s := range Sensitivities(c)[1:] {
		if s.Score > bestScore {
			best, bestScore = s.Promotion, s.Score
		}
	}
	return best
}

// Apply stores the recommendation on the customer record.
func Apply(c *model.Customer) {
	k := Recommend(*c)
	c.RecommendedPromotionIdx = int(k)
	c.RecommendedPromotion = k.String()
}

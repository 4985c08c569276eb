// Package precall assembles account context and prompts a language model for
// a pre-call plan.
package precall

import (
	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/knowledge"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/core/promotion"
)

// DriverCount is the number of attribution drivers included in the prompt.
const DriverCount = 5

// Sensitivities lists the customer's promotional responsiveness.
type Sensitivities struct {
	Discount              float64 `json:"discount_sensitivity"`
	SLA                   float64 `json:"sla_sensitivity"`
	Training              float64 `json:"training_sensitivity"`
	ImplementationSupport float64 `json:"implementation_support_sensitivity"`
}

// CustomerContext is everything the planner knows about an account.
type CustomerContext struct {
	CustomerID           string               `json:"customer_id"`
	CompanyName          string               `json:"company_name"`
	PredictedRevenue     float64              `json:"predicted_revenue"`
	AllocatedActions     int                  `json:"allocated_actions"`
	ActionScore          float64              `json:"action_score"`
	RecommendedPromotion string               `json:"recommended_promotion"`
	Sensitivities        Sensitivities        `json:"promotional_sensitivities"`
	TopDrivers           []attribution.Driver `json:"top_5_shap_drivers"`
	BaselineValue        float64              `json:"baseline_value"`
}

// BuildContext gathers the context of c from its attribution row.
func BuildContext(c model.Customer, names []string, contributions []float64, baseline float64) CustomerContext {
	rec := c.RecommendedPromotion
	if rec == "" {
		rec = promotion.Recommend(c).String()
	}
	return CustomerContext{
		CustomerID:           c.ID,
		CompanyName:          c.CompanyName,
		PredictedRevenue:     c.PredictedExpansionRevenue,
		AllocatedActions:     c.AllocatedActions,
		ActionScore:          c.ActionScore,
		RecommendedPromotion: rec,
		Sensitivities: Sensitivities{
			Discount:              c.DiscountSensitivity,
			SLA:                   c.SLASensitivity,
			Training:              c.TrainingSensitivity,
			ImplementationSupport: c.ImplementationSupportSensitivity,
		},
		TopDrivers:    attribution.TopDrivers(names, contributions, c.Features(), DriverCount),
		BaselineValue: baseline,
	}
}

// Request is the input of a planning call.
type Request struct {
	Customer  CustomerContext
	Knowledge []knowledge.Entry
}

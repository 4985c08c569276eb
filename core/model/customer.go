package model

import (
	"fmt"
	"strings"
)

// Quarter names the budget cycle quarter of a customer.
type Quarter string

const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

// Quarters lists the budget cycle quarters in calendar order.
var Quarters = []Quarter{Q1, Q2, Q3, Q4}

// Customer is a B2B account scored and allocated sales actions.
type Customer struct {
	ID          string `json:"customer_id"`
	CompanyName string `json:"company_name"`

	// Firmographic
	EmployeeCount      float64 `json:"employee_count"`
	AnnualRevenueM     float64 `json:"annual_revenue_m"`
	TechStackSize      float64 `json:"tech_stack_size"`
	CloudMaturityScore float64 `json:"cloud_maturity_score"`

	// Engagement
	WebsiteVisits30d    float64 `json:"website_visits_30d"`
	WhitepaperDownloads float64 `json:"whitepaper_downloads"`
	DemoRequests        float64 `json:"demo_requests"`
	EmailOpenRate       float64 `json:"email_open_rate"`
	WebinarAttendance   float64 `json:"webinar_attendance"`

	// Product fit
	CompetitorProductCount float64 `json:"competitor_product_count"`
	IntegrationNeeds       float64 `json:"integration_needs"`
	SecurityComplianceReq  float64 `json:"security_compliance_req"`
	APIUsageIntent         float64 `json:"api_usage_intent"`

	// Relationship
	RelationshipAgeMonths float64 `json:"relationship_age_months"`
	PreviousChurnRisk     float64 `json:"previous_churn_risk"`
	SupportTickets90d     float64 `json:"support_tickets_90d"`
	CSMRelationshipScore  float64 `json:"csm_relationship_score"`

	// Market
	IndustryGrowthRate     float64 `json:"industry_growth_rate"`
	CompetitivePressureIdx float64 `json:"competitive_pressure_idx"`
	BudgetCycleQuarter     Quarter `json:"budget_cycle_quarter"`

	// Promotional sensitivity, each in [0,1]
	DiscountSensitivity              float64 `json:"discount_sensitivity"`
	SLASensitivity                   float64 `json:"sla_sensitivity"`
	TrainingSensitivity              float64 `json:"training_sensitivity"`
	ImplementationSupportSensitivity float64 `json:"implementation_support_sensitivity"`

	// Derived by the pipeline
	ExpansionRevenuePotential float64 `json:"expansion_revenue_potential"`
	PredictedExpansionRevenue float64 `json:"predicted_expansion_revenue"`
	ActionScore               float64 `json:"action_score"`
	AllocatedActions          int     `json:"allocated_actions"`
	RecommendedPromotionIdx   int     `json:"recommended_promotion_idx"`
	RecommendedPromotion      string  `json:"recommended_promotion"`
}

type field struct {
	name string
	ref  func(*Customer) *float64
}

// fields lists model features in column order. The budget cycle one-hot
// columns are derived and have no backing field.
var fields = []field{
	{"employee_count", func(c *Customer) *float64 { return &c.EmployeeCount }},
	{"annual_revenue_m", func(c *Customer) *float64 { return &c.AnnualRevenueM }},
	{"tech_stack_size", func(c *Customer) *float64 { return &c.TechStackSize }},
	{"cloud_maturity_score", func(c *Customer) *float64 { return &c.CloudMaturityScore }},
	{"website_visits_30d", func(c *Customer) *float64 { return &c.WebsiteVisits30d }},
	{"whitepaper_downloads", func(c *Customer) *float64 { return &c.WhitepaperDownloads }},
	{"demo_requests", func(c *Customer) *float64 { return &c.DemoRequests }},
	{"email_open_rate", func(c *Customer) *float64 { return &c.EmailOpenRate }},
	{"webinar_attendance", func(c *Customer) *float64 { return &c.WebinarAttendance }},
	{"competitor_product_count", func(c *Customer) *float64 { return &c.CompetitorProductCount }},
	{"integration_needs", func(c *Customer) *float64 { return &c.IntegrationNeeds }},
	{"security_compliance_req", func(c *Customer) *float64 { return &c.SecurityComplianceReq }},
	{"api_usage_intent", func(c *Customer) *float64 { return &c.APIUsageIntent }},
	{"relationship_age_months", func(c *Customer) *float64 { return &c.RelationshipAgeMonths }},
	{"previous_churn_risk", func(c *Customer) *float64 { return &c.PreviousChurnRisk }},
	{"support_tickets_90d", func(c *Customer) *float64 { return &c.SupportTickets90d }},
	{"csm_relationship_score", func(c *Customer) *float64 { return &c.CSMRelationshipScore }},
	{"industry_growth_rate", func(c *Customer) *float64 { return &c.IndustryGrowthRate }},
	{"competitive_pressure_idx", func(c *Customer) *float64 { return &c.CompetitivePressureIdx }},
	{"discount_sensitivity", func(c *Customer) *float64 { return &c.DiscountSensitivity }},
	{"sla_sensitivity", func(c *Customer) *float64 { return &c.SLASensitivity }},
	{"training_sensitivity", func(c *Customer) *float64 { return &c.TrainingSensitivity }},
	{"implementation_support_sensitivity", func(c *Customer) *float64 { return &c.ImplementationSupportSensitivity }},
}

// FeatureNames returns the model feature columns in a fixed order.
func FeatureNames() []string {
	names := make([]string, 0, len(fields)+len(Quarters))
	for _, f := range fields {
		names = append(names, f.name)
	}
	for _, q := range Quarters {
		names = append(names, quarterColumn(q))
	}
	return names
}

// NumFeatures is the length of Customer.Features.
func NumFeatures() int { return len(fields) + len(Quarters) }

func quarterColumn(q Quarter) string {
	return "budget_cycle_" + strings.ToLower(string(q))
}

// Features returns the model input vector in FeatureNames order.
func (c Customer) Features() []float64 {
	out := make([]float64, 0, NumFeatures())
	for _, f := range fields {
		out = append(out, *f.ref(&c))
	}
	for _, q := range Quarters {
		out = append(out, c.quarterFlag(q))
	}
	return out
}

func (c Customer) quarterFlag(q Quarter) float64 {
	if c.BudgetCycleQuarter == q {
		return 1
	}
	return 0
}

// Feature returns the named feature value.
func (c Customer) Feature(name string) (float64, bool) {
	for _, f := range fields {
		if f.name == name {
			return *f.ref(&c), true
		}
	}
	for _, q := range Quarters {
		if quarterColumn(q) == name {
			return c.quarterFlag(q), true
		}
	}
	return 0, false
}

// SetFeature assigns a raw numeric feature. One-hot columns are read-only.
func (c *Customer) SetFeature(name string, v float64) error {
	for _, f := range fields {
		if f.name == name {
			*f.ref(c) = v
			return nil
		}
	}
	return fmt.Errorf("unknown feature %s", name)
}

// RawFeatureNames returns the settable numeric columns.
func RawFeatureNames() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Title renders a snake_case column name for display, e.g.
// "demo_requests" becomes "Demo Requests".
func Title(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Validate checks the record is usable by the pipeline.
func (c Customer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	switch c.BudgetCycleQuarter {
	case Q1, Q2, Q3, Q4:
	default:
		return fmt.Errorf("customer %s: unknown budget cycle quarter %q", c.ID, c.BudgetCycleQuarter)
	}
	return nil
}

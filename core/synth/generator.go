// Package synth generates a reproducible synthetic customer base.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/salesintel/core/model"
)

const (
	// DefaultCustomers is the size of the generated customer base.
	DefaultCustomers = 500
	// DefaultSeed makes runs reproducible.
	DefaultSeed = 42

	minTarget = 5.0
	maxTarget = 200.0
)

// Config controls the generator.
type Config struct {
	Customers int    `json:"customers"`
	Seed      uint64 `json:"seed"`
	// NoiseSigma is the standard deviation of the target noise in $K.
	NoiseSigma float64 `json:"noise_sigma"`
}

// SetDefaults applies the demonstration defaults.
func (c *Config) SetDefaults() {
	if c.Customers == 0 {
		c.Customers = DefaultCustomers
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.NoiseSigma == 0 {
		c.NoiseSigma = 5
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Customers <= 0 {
		return fmt.Errorf("customers must be positive")
	}
	if c.NoiseSigma < 0 {
		return fmt.Errorf("noise_sigma must not be negative")
	}
	return nil
}

// Generator draws customers column by column from a single seeded source.
type Generator struct {
	cfg Config
	src rand.Source
}

// New returns a generator for cfg.
func New(cfg Config) (*Generator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)}, nil
}

type column struct {
	name string
	draw func() float64
}

func (g *Generator) columns() []column {
	src := g.src
	poisson := func(l float64) func() float64 { return distuv.Poisson{Lambda: l, Src: src}.Rand }
	beta := func(a, b float64) func() float64 { return distuv.Beta{Alpha: a, Beta: b, Src: src}.Rand }
	scaled := func(f func() float64, k float64) func() float64 { return func() float64 { return f() * k } }
	return []column{
		{"employee_count", func() float64 {
			return math.Trunc(distuv.LogNormal{Mu: 6, Sigma: 1.5, Src: src}.Rand())
		}},
		{"annual_revenue_m", distuv.LogNormal{Mu: 4, Sigma: 1.2, Src: src}.Rand},
		{"tech_stack_size", poisson(12)},
		{"cloud_maturity_score", scaled(beta(2, 2), 10)},

		{"website_visits_30d", poisson(8)},
		{"whitepaper_downloads", poisson(2)},
		{"demo_requests", distuv.Binomial{N: 3, P: 0.3, Src: src}.Rand},
		{"email_open_rate", beta(3, 2)},
		{"webinar_attendance", poisson(1.5)},

		{"competitor_product_count", poisson(2)},
		{"integration_needs", poisson(5)},
		{"security_compliance_req", distuv.Bernoulli{P: 0.7, Src: src}.Rand},
		{"api_usage_intent", beta(2, 3)},

		// numpy's gamma(shape=3, scale=4) is rate 1/4.
		{"relationship_age_months", distuv.Gamma{Alpha: 3, Beta: 0.25, Src: src}.Rand},
		{"previous_churn_risk", beta(2, 5)},
		{"support_tickets_90d", poisson(3)},
		{"csm_relationship_score", scaled(beta(4, 2), 10)},

		{"industry_growth_rate", distuv.Normal{Mu: 0.05, Sigma: 0.03, Src: src}.Rand},
		{"competitive_pressure_idx", scaled(beta(2, 2), 10)},
	}
}

var sensitivityColumns = []struct {
	name string
	a, b float64
}{
	{"discount_sensitivity", 3, 2},
	{"sla_sensitivity", 2, 2},
	{"training_sensitivity", 2, 3},
	{"implementation_support_sensitivity", 2.5, 2},
}

// Generate returns cfg.Customers customers with their target variable set.
func (g *Generator) Generate() ([]model.Customer, error) {
	n := g.cfg.Customers
	customers := make([]model.Customer, n)
	for i := range customers {
		customers[i].ID = fmt.Sprintf("CUST_%05d", i)
		customers[i].CompanyName = fmt.Sprintf("Company_%d", i)
	}

	for _, col := range g.columns() {
		for i := range customers {
			if err := customers[i].SetFeature(col.name, col.draw()); err != nil {
				return nil, err
			}
		}
	}

	quarter := distuv.NewCategorical([]float64{1, 1, 1, 1}, g.src)
	for i := range customers {
		customers[i].BudgetCycleQuarter = model.Quarters[int(quarter.Rand())]
	}

	for _, col := range sensitivityColumns {
		d := distuv.Beta{Alpha: col.a, Beta: col.b, Src: g.src}
		for i := range customers {
			if err := customers[i].SetFeature(col.name, d.Rand()); err != nil {
				return nil, err
			}
		}
	}

	noise := distuv.Normal{Mu: 0, Sigma: g.cfg.NoiseSigma, Src: g.src}
	for i := range customers {
		eps := 0.0
		if g.cfg.NoiseSigma > 0 {
			eps = noise.Rand()
		}
		customers[i].ExpansionRevenuePotential = ExpansionTarget(customers[i], eps)
	}
	return customers, nil
}

// ExpansionTarget is the ground-truth expansion revenue potential in $K with
// the given noise term, clipped to [5, 200].
func ExpansionTarget(c model.Customer, noise float64) float64 {
	v := c.AnnualRevenueM*0.02 +
		c.EmployeeCount*0.001 +
		c.TechStackSize*2.0 +
		c.CloudMaturityScore*3.0 +
		c.WebsiteVisits30d*0.5 +
		c.DemoRequests*5.0 +
		c.EmailOpenRate*10.0 +
		c.IntegrationNeeds*1.5 +
		c.SecurityComplianceReq*8.0 +
		c.CSMRelationshipScore*2.0 +
		c.IndustryGrowthRate*50.0 +
		noise
	// interaction effects
	v += c.DemoRequests*c.CloudMaturityScore*0.5 +
		c.EmployeeCount*c.TechStackSize*0.0001
	return math.Min(math.Max(v, minTarget), maxTarget)
}

package precall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/knowledge"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/infra/logger"
)

type fakeLLM struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func sampleCustomer() model.Customer {
	return model.Customer{
		ID:                               "CUST_0007",
		CompanyName:                      "Company_7",
		DemoRequests:                     4,
		CloudMaturityScore:               8.5,
		DiscountSensitivity:              0.2,
		SLASensitivity:                   0.4,
		TrainingSensitivity:              0.9,
		ImplementationSupportSensitivity: 0.1,
		PredictedExpansionRevenue:        87.3,
		AllocatedActions:                 5,
		ActionScore:                      91.2,
		BudgetCycleQuarter:               model.Q2,
	}
}

func sampleContext(t *testing.T) CustomerContext {
	t.Helper()
	names := model.FeatureNames()
	contrib := make([]float64, len(names))
	contrib[6] = 12.5 // demo_requests
	contrib[3] = -4   // cloud_maturity_score
	contrib[0] = 1
	return BuildContext(sampleCustomer(), names, contrib, 40)
}

func TestBuildContext(t *testing.T) {
	ctx := sampleContext(t)
	assert.Equal(t, "CUST_0007", ctx.CustomerID)
	assert.Equal(t, "Training Credits ($10K)", ctx.RecommendedPromotion)
	assert.Equal(t, 0.9, ctx.Sensitivities.Training)
	require.Len(t, ctx.TopDrivers, DriverCount)
	assert.Equal(t, "demo_requests", ctx.TopDrivers[0].Feature)
	assert.Equal(t, 4.0, ctx.TopDrivers[0].Value)
	assert.Equal(t, attribution.Positive, ctx.TopDrivers[0].Direction)
	assert.Equal(t, "cloud_maturity_score", ctx.TopDrivers[1].Feature)
	assert.Equal(t, attribution.Negative, ctx.TopDrivers[1].Direction)
	assert.Equal(t, 40.0, ctx.BaselineValue)
}

func TestBuildContextKeepsStoredPromotion(t *testing.T) {
	c := sampleCustomer()
	c.RecommendedPromotion = "Extended SLA (99.99% uptime)"
	ctx := BuildContext(c, model.FeatureNames(), make([]float64, model.NumFeatures()), 0)
	assert.Equal(t, c.RecommendedPromotion, ctx.RecommendedPromotion)
}

func TestPrompt(t *testing.T) {
	req := Request{
		Customer: sampleContext(t),
		Knowledge: []knowledge.Entry{
			{Name: "product_capabilities.md", Content: "Unified data plane"},
		},
	}
	p, err := Prompt(req)
	require.NoError(t, err)
	assert.Contains(t, p, "CUSTOMER PROFILE:")
	assert.Contains(t, p, `"customer_id": "CUST_0007"`)
	assert.Contains(t, p, "The model predicts $87.3K expansion revenue potential (vs. $40.0K baseline).")
	assert.Contains(t, p, "- Demo Requests: 4.00 (increases revenue by $12.5K)")
	assert.Contains(t, p, "- Cloud Maturity Score: 8.50 (decreases revenue by $4.0K)")
	assert.Contains(t, p, "allocated 5 high-priority actions")
	assert.Contains(t, p, "--- product_capabilities.md ---\nUnified data plane...")
	assert.Contains(t, p, "- Training Credits: 0.90")
	assert.Contains(t, p, "[Source: document_name]")
}

func TestPromptWithoutKnowledge(t *testing.T) {
	p, err := Prompt(Request{Customer: sampleContext(t)})
	require.NoError(t, err)
	assert.NotContains(t, p, "--- ")
	assert.Contains(t, p, "KNOWLEDGE BASE:")
}

func TestPlannerGenerate(t *testing.T) {
	llm := &fakeLLM{reply: "# Plan\n\nCall them."}
	p := NewPlanner(llm, logger.NopLogger{})
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	plan, err := p.Generate(context.Background(), Request{Customer: sampleContext(t)})
	require.NoError(t, err)
	assert.Equal(t, "CUST_0007", plan.CustomerID)
	assert.Equal(t, "# Plan\n\nCall them.", plan.Markdown)
	assert.Equal(t, fixed, plan.GeneratedAt)
	assert.Equal(t, "precall_plan_CUST_0007.md", plan.FileName())
	assert.Equal(t, llm.prompt, plan.Prompt)
	assert.True(t, strings.HasPrefix(llm.prompt, "You are an expert enterprise sales strategist."))
}

func TestPlannerErrors(t *testing.T) {
	req := Request{Customer: sampleContext(t)}

	_, err := NewPlanner(nil, logger.NopLogger{}).Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	boom := errors.New("quota exceeded")
	_, err = NewPlanner(&fakeLLM{err: boom}, logger.NopLogger{}).Generate(context.Background(), req)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "CUST_0007")

	_, err = NewPlanner(&fakeLLM{reply: "  \n"}, logger.NopLogger{}).Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

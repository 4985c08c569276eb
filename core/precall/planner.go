package precall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/salesintel/core/logger"
)

// ErrNoAPIKey is returned when the language model backend has no credentials.
var ErrNoAPIKey = errors.New("language model api key not configured")

// ErrEmptyPlan is returned when the model answers with no text.
var ErrEmptyPlan = errors.New("language model returned an empty plan")

// LLM generates text from a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Plan is a generated pre-call plan.
type Plan struct {
	CustomerID  string        `json:"customer_id"`
	Markdown    string        `json:"markdown"`
	Prompt      string        `json:"-"`
	GeneratedAt time.Time     `json:"generated_at"`
	Latency     time.Duration `json:"latency"`
}

// FileName is the suggested download name of the plan.
func (p Plan) FileName() string {
	return fmt.Sprintf("precall_plan_%s.md", p.CustomerID)
}

// Planner turns account context into a plan using an LLM.
type Planner struct {
	llm LLM
	log logger.Logger
	now func() time.Time
}

// NewPlanner returns a Planner. A nil llm makes every call fail with
// ErrNoAPIKey.
func NewPlanner(llm LLM, log logger.Logger) *Planner {
	return &Planner{llm: llm, log: log, now: time.Now}
}

// Generate renders the prompt for req and asks the model for a plan.
func (p *Planner) Generate(ctx context.Context, req Request) (Plan, error) {
	if p.llm == nil {
		return Plan{}, ErrNoAPIKey
	}
	prompt, err := Prompt(req)
	if err != nil {
		return Plan{}, err
	}
	start := p.now()
	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return Plan{}, fmt.Errorf("generate plan for %s: %w", req.Customer.CustomerID, err)
	}
	if strings.TrimSpace(text) == "" {
		return Plan{}, ErrEmptyPlan
	}
	end := p.now()
	p.log.Infow("pre-call plan generated", map[string]any{
		"customer_id":  req.Customer.CustomerID,
		"prompt_chars": len(prompt),
		"plan_chars":   len(text),
		"latency_ms":   end.Sub(start).Milliseconds(),
	})
	return Plan{
		CustomerID:  req.Customer.CustomerID,
		Markdown:    text,
		Prompt:      prompt,
		GeneratedAt: end,
		Latency:     end.Sub(start),
	}, nil
}

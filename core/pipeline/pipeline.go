// Package pipeline chains the sales-intelligence stages: generate, train,
// attribute, score, allocate, then publish and persist the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/salesintel/core/allocation"
	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/events"
	"github.com/kilianp07/salesintel/core/logger"
	"github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/core/mqtt"
	"github.com/kilianp07/salesintel/core/promotion"
	"github.com/kilianp07/salesintel/core/regression"
	"github.com/kilianp07/salesintel/core/runlog"
	"github.com/kilianp07/salesintel/core/scoring"
	"github.com/kilianp07/salesintel/core/synth"
	"github.com/kilianp07/salesintel/internal/eventbus"
)

// Options parameterize one run.
type Options struct {
	Generator  synth.Config      `json:"generator"`
	Model      regression.Config `json:"model"`
	Scoring    scoring.Weights   `json:"scoring"`
	Allocation allocation.Config `json:"allocation"`
	// Customers skips generation when set.
	Customers []model.Customer `json:"-"`
	// AckTimeout makes publication wait for worker acknowledgments.
	AckTimeout time.Duration `json:"ack_timeout"`
}

// DefaultOptions returns the demonstration pipeline settings.
func DefaultOptions() Options {
	o := Options{Scoring: scoring.DefaultWeights(), Allocation: allocation.DefaultConfig()}
	o.Generator.SetDefaults()
	o.Model.SetDefaults()
	return o
}

// Result is everything a run produced.
type Result struct {
	RunID        string            `json:"run_id"`
	StartedAt    time.Time         `json:"started_at"`
	Customers    []model.Customer  `json:"customers"`
	Model        *regression.Model `json:"model"`
	Attributions *attribution.Set  `json:"attributions"`
	Plan         allocation.Plan   `json:"plan"`
	Summary      model.Summary     `json:"summary"`
	// Published counts assignments delivered to the broker.
	Published int `json:"published"`
}

// Customer returns the record with the given id.
func (r *Result) Customer(id string) (model.Customer, bool) {
	for _, c := range r.Customers {
		if c.ID == id {
			return c, true
		}
	}
	return model.Customer{}, false
}

// Artifacts persists run outputs.
type Artifacts interface {
	SaveGenerated(customers []model.Customer) error
	SaveResult(res *Result) error
}

// Runner executes the pipeline. Every collaborator except the logger is
// optional.
type Runner struct {
	log       logger.Logger
	bus       eventbus.EventBus
	sink      metrics.Sink
	runs      runlog.Store
	artifacts Artifacts
	publisher mqtt.Publisher
	now       func() time.Time
	newID     func() string
}

// Option configures a Runner.
type Option func(*Runner)

func WithBus(b eventbus.EventBus) Option { return func(r *Runner) { r.bus = b } }
func WithSink(s metrics.Sink) Option { return func(r *Runner) { r.sink = s } }
func WithRunLog(s runlog.Store) Option { return func(r *Runner) { r.runs = s } }
func WithArtifacts(a Artifacts) Option { return func(r *Runner) { r.artifacts = a } }
func WithPublisher(p mqtt.Publisher) Option { return func(r *Runner) { r.publisher = p } }
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }
func WithRunIDs(newID func() string) Option { return func(r *Runner) { r.newID = newID } }

// New returns a Runner logging to log.
func New(log logger.Logger, opts ...Option) *Runner {
	r := &Runner{log: log, sink: metrics.NopSink{}, now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes every stage. A failed stage aborts the run; the failure is
// still recorded in the run log and emitted as events.
func (r *Runner) Run(ctx context.Context, o Options) (*Result, error) {
	res := &Result{RunID: r.newID(), StartedAt: r.now()}
	r.log.Infow("pipeline run started", map[string]any{"run_id": res.RunID})
	err := r.run(ctx, o, res)
	r.finish(ctx, o, res, err)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, o Options, res *Result) error {
	stages := []struct {
		name events.Stage
		fn   func() error
	}{
		{events.StageGenerate, func() error { return r.generate(o, res) }},
		{events.StageTrain, func() error { return r.train(o, res) }},
		{events.StageAttribute, func() error { return r.attribute(res) }},
		{events.StageScore, func() error { scoring.Apply(o.Scoring, res.Customers); return nil }},
		{events.StageAllocate, func() error { return r.allocate(o, res) }},
		{events.StagePublish, func() error { return r.publish(ctx, o, res) }},
		{events.StagePersist, func() error { return r.persist(res) }},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := r.now()
		err := st.fn()
		r.emit(events.StageEvent{RunID: res.RunID, Stage: st.name, Duration: r.now().Sub(start), Err: err})
		if err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

func (r *Runner) generate(o Options, res *Result) error {
	if o.Customers != nil {
		res.Customers = make([]model.Customer, len(o.Customers))
		copy(res.Customers, o.Customers)
		for i := range res.Customers {
			if err := res.Customers[i].Validate(); err != nil {
				return err
			}
		}
	} else {
		g, err := synth.New(o.Generator)
		if err != nil {
			return err
		}
		if res.Customers, err = g.Generate(); err != nil {
			return err
		}
	}
	for i := range res.Customers {
		promotion.Apply(&res.Customers[i])
	}
	if o.Customers == nil && r.artifacts != nil {
		return r.artifacts.SaveGenerated(res.Customers)
	}
	return nil
}

func (r *Runner) train(o Options, res *Result) error {
	rows, y := Matrix(res.Customers)
	m, err := regression.Train(o.Model, model.FeatureNames(), rows, y)
	if err != nil {
		return err
	}
	res.Model = m
	r.log.Infow("model trained", map[string]any{
		"run_id":   res.RunID,
		"train_r2": m.TrainR2,
		"test_r2":  m.TestR2,
	})
	return nil
}

func (r *Runner) attribute(res *Result) error {
	rows, _ := Matrix(res.Customers)
	preds, err := res.Model.PredictAll(rows)
	if err != nil {
		return err
	}
	ids := make([]string, len(res.Customers))
	for i := range res.Customers {
		res.Customers[i].PredictedExpansionRevenue = preds[i]
		ids[i] = res.Customers[i].ID
	}
	res.Attributions, err = attribution.ExplainAll(res.Model, ids, rows)
	return err
}

func (r *Runner) allocate(o Options, res *Result) error {
	a, err := allocation.New(o.Allocation)
	if err != nil {
		return err
	}
	entities := make([]allocation.Entity, len(res.Customers))
	for i, c := range res.Customers {
		entities[i] = allocation.Entity{ID: c.ID, PriorityScore: c.ActionScore}
	}
	if res.Plan, err = a.Allocate(entities); err != nil {
		return err
	}
	units := res.Plan.Map()
	for i := range res.Customers {
		res.Customers[i].AllocatedActions = units[res.Customers[i].ID]
	}
	res.Summary = model.Summarize(res.Customers)
	r.log.Infow("actions allocated", map[string]any{
		"run_id":     res.RunID,
		"allocated":  res.Plan.Allocated,
		"recipients": res.Plan.Recipients,
		"min":        res.Summary.MinActions,
		"max":        res.Summary.MaxActions,
		"mean":       res.Summary.MeanActions,
	})
	return nil
}

func (r *Runner) persist(res *Result) error {
	if r.artifacts == nil {
		return nil
	}
	return r.artifacts.SaveResult(res)
}

// publish sends every positive assignment. Delivery failures are reported
// per customer and do not fail the run.
func (r *Runner) publish(ctx context.Context, o Options, res *Result) error {
	if r.publisher == nil {
		return nil
	}
	byID := customersByID(res.Customers)
	var failed int
	for _, as := range res.Plan.Assignments {
		if as.Units == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c := byID[as.ID]
		start := r.now()
		id, err := r.publisher.Publish(ctx, mqtt.Assignment{
			RunID:            res.RunID,
			CustomerID:       c.ID,
			CompanyName:      c.CompanyName,
			Rank:             as.Rank,
			Units:            as.Units,
			ActionScore:      c.ActionScore,
			PredictedRevenue: c.PredictedExpansionRevenue,
			Promotion:        c.RecommendedPromotion,
		})
		if err == nil {
			if o.AckTimeout > 0 {
				_, err = r.publisher.WaitForAck(id, o.AckTimeout)
			} else if f, ok := r.publisher.(mqtt.Forgetter); ok {
				f.Forget(id)
			}
		}
		r.emit(events.PublishEvent{RunID: res.RunID, MessageID: id, CustomerID: c.ID, Units: as.Units, Latency: r.now().Sub(start), Err: err})
		if err != nil {
			failed++
			r.log.Warnf("publish %s: %v", c.ID, err)
			continue
		}
		res.Published++
	}
	if failed > 0 {
		r.log.Warnf("run %s: %d of %d assignments not delivered", res.RunID, failed, failed+res.Published)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, o Options, res *Result, runErr error) {
	elapsed := r.now().Sub(res.StartedAt)
	ev := events.RunEvent{
		RunID:         res.RunID,
		Customers:     len(res.Customers),
		Budget:        o.Allocation.TotalBudget,
		Allocated:     res.Plan.Allocated,
		Recipients:    res.Plan.Recipients,
		PipelineValue: res.Summary.TotalPipelineValue,
		Duration:      elapsed,
		Err:           runErr,
	}
	if res.Model != nil {
		ev.TrainR2, ev.TestR2 = res.Model.TrainR2, res.Model.TestR2
	}
	if runErr == nil {
		if err := r.sink.RecordAllocation(allocationResults(res, r.now())); err != nil {
			r.log.Warnf("record allocation metrics: %v", err)
		}
	}
	r.emit(ev)
	if r.runs != nil {
		if err := r.runs.Append(ctx, record(o, res, ev)); err != nil {
			r.log.Errorf("append run log: %v", err)
		}
	}
	if runErr != nil {
		r.log.Errorf("pipeline run %s failed after %s: %v", res.RunID, elapsed, runErr)
		return
	}
	r.log.Infow("pipeline run finished", map[string]any{
		"run_id":      res.RunID,
		"duration_ms": elapsed.Milliseconds(),
		"allocated":   res.Summary.TotalActionsAllocated,
		"recipients":  res.Summary.CustomersWithActions,
	})
}

func (r *Runner) emit(ev eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// Matrix returns the feature rows and targets of customers.
func Matrix(customers []model.Customer) ([][]float64, []float64) {
	rows := make([][]float64, len(customers))
	y := make([]float64, len(customers))
	for i, c := range customers {
		rows[i] = c.Features()
		y[i] = c.ExpansionRevenuePotential
	}
	return rows, y
}

func customersByID(customers []model.Customer) map[string]model.Customer {
	m := make(map[string]model.Customer, len(customers))
	for _, c := range customers {
		m[c.ID] = c
	}
	return m
}

func allocationResults(res *Result, now time.Time) []metrics.AllocationResult {
	byID := customersByID(res.Customers)
	out := make([]metrics.AllocationResult, 0, len(res.Plan.Assignments))
	for _, as := range res.Plan.Assignments {
		c := byID[as.ID]
		out = append(out, metrics.AllocationResult{
			RunID:            res.RunID,
			CustomerID:       as.ID,
			Rank:             as.Rank,
			Units:            as.Units,
			ActionScore:      as.Score,
			PredictedRevenue: c.PredictedExpansionRevenue,
			Promotion:        c.RecommendedPromotion,
			Time:             now,
		})
	}
	return out
}

func record(o Options, res *Result, ev events.RunEvent) runlog.Record {
	rec := runlog.Record{
		RunID:         res.RunID,
		Timestamp:     res.StartedAt,
		Seed:          o.Generator.Seed,
		Customers:     ev.Customers,
		Budget:        o.Allocation.TotalBudget,
		PerEntityCap:  o.Allocation.PerEntityCap,
		Allocated:     res.Plan.Allocated,
		Remaining:     res.Plan.Remaining,
		Recipients:    res.Plan.Recipients,
		PipelineValue: res.Summary.TotalPipelineValue,
		TrainR2:       ev.TrainR2,
		TestR2:        ev.TestR2,
		DurationMS:    ev.Duration.Milliseconds(),
		Assignments:   make(map[string]int, res.Plan.Recipients),
	}
	for _, as := range res.Plan.Assignments {
		if as.Units > 0 {
			rec.Assignments[as.ID] = as.Units
		}
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// IsInvalidPolicy reports whether err stems from a malformed allocation
// policy or input.
func IsInvalidPolicy(err error) bool {
	return errors.Is(err, allocation.ErrInvalidArgument)
}

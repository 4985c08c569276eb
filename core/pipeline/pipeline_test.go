package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/salesintel/core/allocation"
	"github.com/kilianp07/salesintel/core/events"
	"github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/runlog"
	"github.com/kilianp07/salesintel/infra/logger"
	"github.com/kilianp07/salesintel/infra/mqtt"
	"github.com/kilianp07/salesintel/internal/eventbus"
)

type recordingSink struct {
	mu      sync.Mutex
	results []metrics.AllocationResult
}

func (s *recordingSink) RecordAllocation(r []metrics.AllocationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r...)
	return nil
}

type memArtifacts struct {
	generated []model.Customer
	saved     *pipeline.Result
}

func (m *memArtifacts) SaveGenerated(c []model.Customer) error { m.generated = c; return nil }
func (m *memArtifacts) SaveResult(r *pipeline.Result) error    { m.saved = r; return nil }

func smallOptions() pipeline.Options {
	o := pipeline.DefaultOptions()
	o.Generator.Customers = 120
	o.Allocation.TotalBudget = 40
	return o
}

func TestRun_EndToEnd(t *testing.T) {
	bus := eventbus.NewTypedWithBuffer[eventbus.Event](1024)
	sub := bus.Subscribe()
	sink := &recordingSink{}
	store, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	art := &memArtifacts{}
	pub := mqtt.NewMockPublisher()

	r := pipeline.New(logger.NopLogger{},
		pipeline.WithBus(bus),
		pipeline.WithSink(sink),
		pipeline.WithRunLog(store),
		pipeline.WithArtifacts(art),
		pipeline.WithPublisher(pub),
		pipeline.WithRunIDs(func() string { return "run-1" }),
	)
	res, err := r.Run(context.Background(), smallOptions())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Customers, 120)
	assert.Len(t, art.generated, 120)
	assert.Same(t, res, art.saved)

	var total, recipients int
	for _, c := range res.Customers {
		assert.NotEmpty(t, c.RecommendedPromotion)
		assert.GreaterOrEqual(t, c.ActionScore, 0.0)
		assert.LessOrEqual(t, c.ActionScore, 100.0)
		assert.LessOrEqual(t, c.AllocatedActions, 5)
		total += c.AllocatedActions
		if c.AllocatedActions > 0 {
			recipients++
		}
	}
	assert.Equal(t, 40, total)
	assert.Equal(t, total, res.Summary.TotalActionsAllocated)
	assert.Equal(t, recipients, res.Summary.CustomersWithActions)
	assert.Equal(t, recipients, res.Published)
	assert.Len(t, pub.Published(), recipients)
	assert.Equal(t, recipients, pub.Forgotten(), "no ack wait releases every message")
	assert.Equal(t, recipients, art.saved.Published)
	assert.Len(t, sink.results, 120)
	for _, ar := range sink.results {
		c, ok := res.Customer(ar.CustomerID)
		require.True(t, ok)
		assert.Equal(t, c.PredictedExpansionRevenue, ar.PredictedRevenue)
		assert.Equal(t, c.RecommendedPromotion, ar.Promotion)
		assert.Equal(t, c.AllocatedActions, ar.Units)
	}

	// Attributions reconstruct predictions.
	for i, c := range res.Customers[:10] {
		sum := res.Attributions.ExpectedValue
		for _, v := range res.Attributions.Values[i] {
			sum += v
		}
		assert.InDelta(t, c.PredictedExpansionRevenue, sum, 1e-6)
	}

	recs, err := store.Query(context.Background(), runlog.Query{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 40, recs[0].Allocated)
	assert.Len(t, recs[0].Assignments, recipients)
	assert.Empty(t, recs[0].Error)

	var stages []events.Stage
	var run *events.RunEvent
	for len(sub) > 0 {
		switch ev := (<-sub).(type) {
		case events.StageEvent:
			stages = append(stages, ev.Stage)
		case events.RunEvent:
			run = &ev
		}
	}
	assert.Equal(t, []events.Stage{
		events.StageGenerate, events.StageTrain, events.StageAttribute, events.StageScore,
		events.StageAllocate, events.StagePublish, events.StagePersist,
	}, stages)
	require.NotNil(t, run)
	assert.Equal(t, 40, run.Allocated)
	assert.NoError(t, run.Err)
}

func TestRun_Deterministic(t *testing.T) {
	r := pipeline.New(logger.NopLogger{})
	a, err := r.Run(context.Background(), smallOptions())
	require.NoError(t, err)
	b, err := r.Run(context.Background(), smallOptions())
	require.NoError(t, err)
	assert.Equal(t, a.Plan.Map(), b.Plan.Map())
	assert.Equal(t, a.Summary, b.Summary)
}

func TestRun_SuppliedCustomersSkipGeneration(t *testing.T) {
	r := pipeline.New(logger.NopLogger{})
	first, err := r.Run(context.Background(), smallOptions())
	require.NoError(t, err)

	art := &memArtifacts{}
	o := smallOptions()
	o.Customers = first.Customers
	res, err := pipeline.New(logger.NopLogger{}, pipeline.WithArtifacts(art)).Run(context.Background(), o)
	require.NoError(t, err)
	assert.Nil(t, art.generated)
	assert.Equal(t, first.Plan.Map(), res.Plan.Map())
}

func TestRun_InvalidPolicyIsRecorded(t *testing.T) {
	store, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	o := smallOptions()
	o.Allocation.PerEntityCap = -1

	_, err = pipeline.New(logger.NopLogger{}, pipeline.WithRunLog(store)).Run(context.Background(), o)
	require.Error(t, err)
	assert.True(t, pipeline.IsInvalidPolicy(err))
	assert.True(t, errors.Is(err, allocation.ErrInvalidArgument))

	recs, err := store.Query(context.Background(), runlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].Error)
}

func TestRun_PublishFailuresDoNotFailRun(t *testing.T) {
	pub := mqtt.NewMockPublisher()
	first, err := pipeline.New(logger.NopLogger{}).Run(context.Background(), smallOptions())
	require.NoError(t, err)
	top := first.Plan.Assignments[0].ID
	pub.FailIDs[top] = true

	o := smallOptions()
	o.AckTimeout = time.Second
	res, err := pipeline.New(logger.NopLogger{}, pipeline.WithPublisher(pub)).Run(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, res.Summary.CustomersWithActions-1, res.Published)
	assert.NotContains(t, pub.Published(), top)
	assert.Zero(t, pub.Forgotten())
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.New(logger.NopLogger{}).Run(ctx, smallOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

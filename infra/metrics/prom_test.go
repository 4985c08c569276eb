package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/salesintel/core/metrics"
)

func TestPromSinkRecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordRun(coremetrics.RunSummary{
		RunID: "r1", Allocated: 250, Recipients: 50, PipelineValue: 4321.5,
		TrainR2: 0.91, TestR2: 0.88, Success: true,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := sink.RecordRun(coremetrics.RunSummary{RunID: "r2"}); err != nil {
		t.Fatalf("record failed run: %v", err)
	}

	expected := `
# HELP salesintel_allocation_runs_total Pipeline runs by outcome
# TYPE salesintel_allocation_runs_total counter
salesintel_allocation_runs_total{status="failure"} 1
salesintel_allocation_runs_total{status="success"} 1
`
	if err := testutil.CollectAndCompare(sink.runs, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected runs metric: %v", err)
	}
	if v := testutil.ToFloat64(sink.allocated); v != 250 {
		t.Errorf("allocated gauge = %v", v)
	}
	if v := testutil.ToFloat64(sink.recipients); v != 50 {
		t.Errorf("recipients gauge = %v", v)
	}
	if v := testutil.ToFloat64(sink.r2.WithLabelValues("test")); v != 0.88 {
		t.Errorf("test r2 = %v", v)
	}
}

func TestPromSinkAllocationAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	res := []coremetrics.AllocationResult{{CustomerID: "a", Units: 5}, {CustomerID: "b", Units: 0}}
	if err := sink.RecordAllocation(res); err != nil {
		t.Fatalf("record allocation: %v", err)
	}
	if c := testutil.CollectAndCount(sink.perCustomer); c != 1 {
		t.Errorf("expected one histogram series, got %d", c)
	}
	_ = sink.RecordStageDuration([]coremetrics.StageDuration{{Stage: "train", Duration: 20 * time.Millisecond, Success: true}})
	_ = sink.RecordPublish(coremetrics.PublishResult{Delivered: true})
	_ = sink.RecordPublish(coremetrics.PublishResult{Delivered: false})
	_ = sink.RecordPlan(coremetrics.PlanResult{Success: true, Latency: 3 * time.Second})
	_ = sink.RecordKnowledgeDocuments(5)

	if c := testutil.CollectAndCount(sink.stages); c != 1 {
		t.Errorf("stage series = %d", c)
	}
	if v := testutil.ToFloat64(sink.publishes.WithLabelValues("false")); v != 1 {
		t.Errorf("failed publishes = %v", v)
	}
	if c := testutil.CollectAndCount(sink.plans); c != 1 {
		t.Errorf("plan series = %d", c)
	}
	if v := testutil.ToFloat64(sink.documents); v != 5 {
		t.Errorf("documents = %v", v)
	}
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = first.RecordKnowledgeDocuments(3)
	if v := testutil.ToFloat64(second.documents); v != 3 {
		t.Fatalf("collectors not shared: %v", v)
	}
}

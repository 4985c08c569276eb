package metrics

import "time"

// AllocationResult is one customer's outcome in an allocation run.
type AllocationResult struct {
	RunID            string
	CustomerID       string
	Rank             int
	Units            int
	ActionScore      float64
	PredictedRevenue float64
	Promotion        string
	Time             time.Time
}

// Sink records allocation results.
type Sink interface {
	RecordAllocation(results []AllocationResult) error
}

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	RunID         string
	Customers     int
	Budget        int
	Allocated     int
	Recipients    int
	PipelineValue float64
	TrainR2       float64
	TestR2        float64
	Duration      time.Duration
	Success       bool
	Time          time.Time
}

// RunRecorder records finished runs.
type RunRecorder interface {
	RecordRun(ev RunSummary) error
}

// StageDuration is the wall time of one pipeline stage.
type StageDuration struct {
	RunID    string
	Stage    string
	Duration time.Duration
	Success  bool
}

// StageRecorder records stage timings.
type StageRecorder interface {
	RecordStageDuration(durations []StageDuration) error
}

// PublishResult reports delivery of an assignment to the action broker.
type PublishResult struct {
	RunID      string
	CustomerID string
	Units      int
	Delivered  bool
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// PublishRecorder records broker deliveries.
type PublishRecorder interface {
	RecordPublish(ev PublishResult) error
}

// PlanResult reports a pre-call plan generation.
type PlanResult struct {
	CustomerID string
	Success    bool
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// PlanRecorder records plan generations.
type PlanRecorder interface {
	RecordPlan(ev PlanResult) error
}

// KnowledgeRecorder records the number of loaded knowledge documents.
type KnowledgeRecorder interface {
	RecordKnowledgeDocuments(n int) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordAllocation([]AllocationResult) error { return nil }
func (NopSink) RecordRun(RunSummary) error                { return nil }
func (NopSink) RecordStageDuration([]StageDuration) error { return nil }
func (NopSink) RecordPublish(PublishResult) error         { return nil }
func (NopSink) RecordPlan(PlanResult) error               { return nil }
func (NopSink) RecordKnowledgeDocuments(int) error        { return nil }

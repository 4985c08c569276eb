package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/salesintel/core/metrics"
)

const namespace = "salesintel"

// PromSink exposes allocation runs as Prometheus metrics.
type PromSink struct {
	runs          *prometheus.CounterVec
	allocated     prometheus.Gauge
	recipients    prometheus.Gauge
	pipelineValue prometheus.Gauge
	r2            *prometheus.GaugeVec
	perCustomer   prometheus.Histogram
	stages        *prometheus.HistogramVec
	publishes     *prometheus.CounterVec
	plans         *prometheus.HistogramVec
	documents     prometheus.Gauge
}

// NewPromSink registers the metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the metrics on reg, reusing collectors
// that are already registered. A nil reg means the default registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocation_runs_total",
		Help:      "Pipeline runs by outcome",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.allocated, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "actions_allocated",
		Help:      "Actions allocated by the last run",
	})); err != nil {
		return nil, err
	}
	if s.recipients, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "customers_with_actions",
		Help:      "Customers that received at least one action in the last run",
	})); err != nil {
		return nil, err
	}
	if s.pipelineValue, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_value_thousands",
		Help:      "Sum of predicted expansion revenue across customers, in thousands",
	})); err != nil {
		return nil, err
	}
	if s.r2, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_r2",
		Help:      "Coefficient of determination of the revenue model",
	}, []string{"split"})); err != nil {
		return nil, err
	}
	if s.perCustomer, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "actions_per_customer",
		Help:      "Distribution of allocated actions per customer",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})); err != nil {
		return nil, err
	}
	if s.stages, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of pipeline stages",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage", "success"})); err != nil {
		return nil, err
	}
	if s.publishes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_publish_total",
		Help:      "Assignments published to the action broker",
	}, []string{"delivered"})); err != nil {
		return nil, err
	}
	if s.plans, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_latency_seconds",
		Help:      "Language model latency for pre-call plans",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"success"})); err != nil {
		return nil, err
	}
	if s.documents, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "knowledge_documents",
		Help:      "Documents currently loaded in the knowledge base",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// RecordAllocation observes the per-customer action distribution.
func (s *PromSink) RecordAllocation(res []coremetrics.AllocationResult) error {
	for _, r := range res {
		s.perCustomer.Observe(float64(r.Units))
	}
	return nil
}

// RecordRun updates the last-run gauges.
func (s *PromSink) RecordRun(ev coremetrics.RunSummary) error {
	status := "success"
	if !ev.Success {
		status = "failure"
	}
	s.runs.WithLabelValues(status).Inc()
	if !ev.Success {
		return nil
	}
	s.allocated.Set(float64(ev.Allocated))
	s.recipients.Set(float64(ev.Recipients))
	s.pipelineValue.Set(ev.PipelineValue)
	s.r2.WithLabelValues("train").Set(ev.TrainR2)
	s.r2.WithLabelValues("test").Set(ev.TestR2)
	return nil
}

func (s *PromSink) RecordStageDuration(ds []coremetrics.StageDuration) error {
	for _, d := range ds {
		s.stages.WithLabelValues(d.Stage, strconv.FormatBool(d.Success)).Observe(d.Duration.Seconds())
	}
	return nil
}

func (s *PromSink) RecordPublish(ev coremetrics.PublishResult) error {
	s.publishes.WithLabelValues(strconv.FormatBool(ev.Delivered)).Inc()
	return nil
}

func (s *PromSink) RecordPlan(ev coremetrics.PlanResult) error {
	s.plans.WithLabelValues(strconv.FormatBool(ev.Success)).Observe(ev.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordKnowledgeDocuments(n int) error {
	s.documents.Set(float64(n))
	return nil
}

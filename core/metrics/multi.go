package metrics

import "errors"

// MultiSink forwards every record to each of its sinks. Optional recorders
// are called only on sinks that implement them. All sinks are tried and
// their errors joined.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink returns a MultiSink over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordAllocation(res []AllocationResult) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordAllocation(res))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordRun(ev RunSummary) error {
	return each(m.Sinks, func(r RunRecorder) error { return r.RecordRun(ev) })
}

func (m *MultiSink) RecordStageDuration(d []StageDuration) error {
	return each(m.Sinks, func(r StageRecorder) error { return r.RecordStageDuration(d) })
}

func (m *MultiSink) RecordPublish(ev PublishResult) error {
	return each(m.Sinks, func(r PublishRecorder) error { return r.RecordPublish(ev) })
}

func (m *MultiSink) RecordPlan(ev PlanResult) error {
	return each(m.Sinks, func(r PlanRecorder) error { return r.RecordPlan(ev) })
}

func (m *MultiSink) RecordKnowledgeDocuments(n int) error {
	return each(m.Sinks, func(r KnowledgeRecorder) error { return r.RecordKnowledgeDocuments(n) })
}

func each[R any](sinks []Sink, f func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if r, ok := s.(R); ok {
			errs = append(errs, f(r))
		}
	}
	return errors.Join(errs...)
}

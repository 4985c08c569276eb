package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/salesintel/core/events"
	coremetrics "github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/infra/logger"
	"github.com/kilianp07/salesintel/internal/eventbus"
)

// StartEventCollector records pipeline events from bus into sink until ctx
// is canceled or the bus is closed. The returned channel is closed when the
// collector exits.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := collect(sink, ev, time.Now()); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func collect(sink coremetrics.Sink, ev eventbus.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.StageEvent:
		if r, ok := sink.(coremetrics.StageRecorder); ok {
			return r.RecordStageDuration([]coremetrics.StageDuration{{
				RunID:    e.RunID,
				Stage:    string(e.Stage),
				Duration: e.Duration,
				Success:  e.Err == nil,
			}})
		}
	case events.RunEvent:
		if r, ok := sink.(coremetrics.RunRecorder); ok {
			return r.RecordRun(coremetrics.RunSummary{
				RunID:         e.RunID,
				Customers:     e.Customers,
				Budget:        e.Budget,
				Allocated:     e.Allocated,
				Recipients:    e.Recipients,
				PipelineValue: e.PipelineValue,
				TrainR2:       e.TrainR2,
				TestR2:        e.TestR2,
				Duration:      e.Duration,
				Success:       e.Err == nil,
				Time:          now,
			})
		}
	case events.PublishEvent:
		if r, ok := sink.(coremetrics.PublishRecorder); ok {
			res := coremetrics.PublishResult{
				RunID:      e.RunID,
				CustomerID: e.CustomerID,
				Units:      e.Units,
				Delivered:  e.Err == nil,
				Latency:    e.Latency,
				Time:       now,
			}
			if e.Err != nil {
				res.Error = e.Err.Error()
			}
			return r.RecordPublish(res)
		}
	case events.KnowledgeEvent:
		if r, ok := sink.(coremetrics.KnowledgeRecorder); ok && e.Err == nil {
			return r.RecordKnowledgeDocuments(e.Documents)
		}
	}
	return nil
}

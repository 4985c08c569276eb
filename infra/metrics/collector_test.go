package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/salesintel/core/events"
	coremetrics "github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/internal/eventbus"
)

type recordingSink struct {
	coremetrics.NopSink
	runs     []coremetrics.RunSummary
	stages   []coremetrics.StageDuration
	publishs []coremetrics.PublishResult
	docs     []int
}

func (r *recordingSink) RecordRun(ev coremetrics.RunSummary) error {
	r.runs = append(r.runs, ev)
	return nil
}

func (r *recordingSink) RecordStageDuration(d []coremetrics.StageDuration) error {
	r.stages = append(r.stages, d...)
	return nil
}

func (r *recordingSink) RecordPublish(ev coremetrics.PublishResult) error {
	r.publishs = append(r.publishs, ev)
	return nil
}

func (r *recordingSink) RecordKnowledgeDocuments(n int) error {
	r.docs = append(r.docs, n)
	return nil
}

func TestCollectMapsEvents(t *testing.T) {
	sink := &recordingSink{}
	now := time.Now()
	require.NoError(t, collect(sink, events.StageEvent{RunID: "r", Stage: events.StageTrain, Duration: time.Second}, now))
	require.NoError(t, collect(sink, events.RunEvent{RunID: "r", Allocated: 10, Err: errors.New("x")}, now))
	require.NoError(t, collect(sink, events.PublishEvent{CustomerID: "c", Units: 3, Err: errors.New("offline")}, now))
	require.NoError(t, collect(sink, events.KnowledgeEvent{Documents: 5}, now))
	require.NoError(t, collect(sink, events.KnowledgeEvent{Documents: 0, Err: errors.New("bad dir")}, now))
	require.NoError(t, collect(sink, "unrelated", now))

	require.Len(t, sink.stages, 1)
	assert.Equal(t, "train", sink.stages[0].Stage)
	assert.True(t, sink.stages[0].Success)
	require.Len(t, sink.runs, 1)
	assert.False(t, sink.runs[0].Success)
	assert.Equal(t, now, sink.runs[0].Time)
	require.Len(t, sink.publishs, 1)
	assert.False(t, sink.publishs[0].Delivered)
	assert.Equal(t, "offline", sink.publishs[0].Error)
	assert.Equal(t, []int{5}, sink.docs)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	sink := &recordingSink{}
	done := StartEventCollector(context.Background(), bus, sink)

	bus.Publish(events.RunEvent{RunID: "r1", Allocated: 250})
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	require.Len(t, sink.runs, 1)
	assert.Equal(t, "r1", sink.runs[0].RunID)
	assert.True(t, sink.runs[0].Success)
}

func TestStartEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
	_, open := <-done
	assert.False(t, open)
}

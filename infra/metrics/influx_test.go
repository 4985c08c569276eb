package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/salesintel/core/metrics"
)

type captureServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	c := &captureServer{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, strings.TrimSpace(string(data)))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *captureServer) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatal("no write received")
	}
	return c.bodies[len(c.bodies)-1]
}

func lineProtocol(points ...*write.Point) string {
	var b strings.Builder
	for _, p := range points {
		b.WriteString(write.PointToLineProtocol(p, time.Nanosecond))
	}
	return strings.TrimSpace(b.String())
}

func TestInfluxSinkRecordAllocation(t *testing.T) {
	srv := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	res := []coremetrics.AllocationResult{
		{RunID: "r1", CustomerID: "CUST_0001", Rank: 1, Units: 5, ActionScore: 100, PredictedRevenue: 150.12345, Promotion: "Extended SLA (99.99% uptime)", Time: now},
		{RunID: "r1", CustomerID: "CUST_0002", Rank: 2, Units: 4, ActionScore: 80, PredictedRevenue: 120, Promotion: "Training Credits ($10K)", Time: now},
	}
	if err := sink.RecordAllocation(res); err != nil {
		t.Fatalf("record: %v", err)
	}
	want := lineProtocol(allocationPoint(res[0]), allocationPoint(res[1]))
	if got := srv.last(t); got != want {
		t.Errorf("unexpected body:\n%s\nwant:\n%s", got, want)
	}
	if !strings.Contains(want, "predicted_revenue=150.123") {
		t.Errorf("revenue not rounded: %s", want)
	}
}

func TestInfluxSinkRecordAllocationEmpty(t *testing.T) {
	srv := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.srv.URL, Org: "org", Bucket: "bucket"})
	defer sink.Close()
	if err := sink.RecordAllocation(nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(srv.bodies) != 0 {
		t.Fatalf("expected no write, got %d", len(srv.bodies))
	}
}

func TestInfluxSinkRecordRun(t *testing.T) {
	srv := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.RunSummary{RunID: "r1", Customers: 500, Budget: 250, Allocated: 250, Recipients: 50,
		PipelineValue: 6000, TrainR2: 0.9, TestR2: 0.85, Duration: 1500 * time.Millisecond, Success: true, Time: now}
	if err := sink.RecordRun(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("run_id", "r1").
		AddTag("success", "true").
		AddField("customers", 500).
		AddField("budget", 250).
		AddField("allocated", 250).
		AddField("recipients", 50).
		AddField("pipeline_value", 6000.0).
		AddField("train_r2", 0.9).
		AddField("test_r2", 0.85).
		AddField("duration_ms", int64(1500)).
		SetTime(now)
	if got, want := srv.last(t), lineProtocol(p); got != want {
		t.Errorf("unexpected body:\n%s\nwant:\n%s", got, want)
	}
}

func TestInfluxSinkRecordPublishWithError(t *testing.T) {
	srv := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.srv.URL, Org: "org", Bucket: "bucket"})
	defer sink.Close()
	err := sink.RecordPublish(coremetrics.PublishResult{RunID: "r1", CustomerID: "c1", Units: 2, Error: "timeout", Time: time.Now()})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	body := srv.last(t)
	if !strings.HasPrefix(body, "action_publish,") || !strings.Contains(body, `error="timeout"`) || !strings.Contains(body, "delivered=false") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink on failing health check, got %T", sink)
	}
	if !called {
		t.Fatal("health endpoint not called")
	}
}

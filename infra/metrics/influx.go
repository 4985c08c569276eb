package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/infra/logger"
)

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes allocation events as InfluxDB points.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint without checking it.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback returns a NopSink when the instance fails its
// health check.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordAllocation writes one action_allocation point per customer.
func (s *InfluxSink) RecordAllocation(res []coremetrics.AllocationResult) error {
	if len(res) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(res))
	for _, r := range res {
		points = append(points, allocationPoint(r))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func allocationPoint(r coremetrics.AllocationResult) *write.Point {
	return write.NewPointWithMeasurement("action_allocation").
		AddTag("run_id", r.RunID).
		AddTag("customer_id", r.CustomerID).
		AddTag("promotion", r.Promotion).
		AddField("rank", r.Rank).
		AddField("units", r.Units).
		AddField("action_score", round3(r.ActionScore)).
		AddField("predicted_revenue", round3(r.PredictedRevenue)).
		SetTime(r.Time)
}

// RecordRun writes an allocation_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("run_id", ev.RunID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("customers", ev.Customers).
		AddField("budget", ev.Budget).
		AddField("allocated", ev.Allocated).
		AddField("recipients", ev.Recipients).
		AddField("pipeline_value", round3(ev.PipelineValue)).
		AddField("train_r2", round3(ev.TrainR2)).
		AddField("test_r2", round3(ev.TestR2)).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPublish writes an action_publish point.
func (s *InfluxSink) RecordPublish(ev coremetrics.PublishResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("action_publish").
		AddTag("run_id", ev.RunID).
		AddTag("customer_id", ev.CustomerID).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("units", ev.Units).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000))
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordPlan writes a precall_plan point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("precall_plan").
		AddTag("customer_id", ev.CustomerID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000))
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

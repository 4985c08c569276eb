package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/salesintel/core/factory"
	coremetrics "github.com/kilianp07/salesintel/core/metrics"
)

func init() {
	_ = coremetrics.RegisterSink("nop", func(map[string]any) (coremetrics.Sink, error) {
		return coremetrics.NopSink{}, nil
	})

	// The /metrics endpoint is served by the HTTP server, so the sink only
	// registers collectors.
	_ = coremetrics.RegisterSink("prometheus", func(map[string]any) (coremetrics.Sink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterSink("influx", func(conf map[string]any) (coremetrics.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}

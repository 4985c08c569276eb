package metrics

import (
	"fmt"

	"github.com/kilianp07/salesintel/core/factory"
)

// Config lists the sinks to build.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds a sink factory under name.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewSink builds the configured sinks. No configuration yields a NopSink and
// several yield a MultiSink.
func NewSink(cfgs []factory.ModuleConfig) (Sink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("metrics sink %d: %w", i, err)
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

// Package factory instantiates pluggable modules, such as metrics sinks, from
// configuration. A module is a type name plus a raw settings map that the
// registered constructor decodes into its own typed config.
//
//	reg := factory.NewRegistry[metrics.Sink]()
//	_ = reg.Register("nop", func(map[string]any) (metrics.Sink, error) {
//	    return metrics.NopSink{}, nil
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "nop"})
package factory

// Package metrics defines the observability contract of the allocation
// pipeline. A Sink records per-customer allocation results; sinks may also
// implement the optional recorder interfaces for run, stage, publish and
// plan events. Implementations live in infra/metrics and are built from
// configuration through NewSink, which fans out to a MultiSink when several
// sinks are configured.
package metrics

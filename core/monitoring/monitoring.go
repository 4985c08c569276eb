// Package monitoring reports pipeline failures to an error tracker.
package monitoring

import (
	"time"

	"github.com/kilianp07/salesintel/core/logger"
)

// Monitor receives errors worth alerting on.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

// Reporter logs an error and forwards it to a monitor.
type Reporter struct {
	mon Monitor
	log logger.Logger
}

// NewReporter returns a Reporter. A nil mon discards captures.
func NewReporter(mon Monitor, log logger.Logger) *Reporter {
	if mon == nil {
		mon = NopMonitor{}
	}
	return &Reporter{mon: mon, log: log}
}

// Report logs and captures err under operation. A nil err is ignored.
func (r *Reporter) Report(operation string, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.log.Errorf("%s: %v", operation, err)
	t := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		t[k] = v
	}
	t["operation"] = operation
	r.mon.CaptureException(err, t)
}

// Flush waits for buffered captures.
func (r *Reporter) Flush(timeout time.Duration) { r.mon.Flush(timeout) }

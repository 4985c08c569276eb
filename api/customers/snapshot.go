package customers

import (
	"sync/atomic"

	"github.com/kilianp07/salesintel/core/pipeline"
)

// Snapshot holds the pipeline result served by the API. It is swapped
// whenever a refresh run completes.
type Snapshot struct {
	res atomic.Pointer[pipeline.Result]
}

// NewSnapshot returns a snapshot holding res, which may be nil.
func NewSnapshot(res *pipeline.Result) *Snapshot {
	s := &Snapshot{}
	if res != nil {
		s.res.Store(res)
	}
	return s
}

// Load returns the current result or nil.
func (s *Snapshot) Load() *pipeline.Result { return s.res.Load() }

// Store replaces the current result.
func (s *Snapshot) Store(res *pipeline.Result) { s.res.Store(res) }

// Package runlog persists a record of every pipeline run so past
// allocations can be audited per customer.
package runlog

import (
	"context"
	"slices"
	"time"
)

// Record summarizes one pipeline run.
type Record struct {
	RunID         string         `json:"run_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Seed          uint64         `json:"seed"`
	Customers     int            `json:"customers"`
	Budget        int            `json:"budget"`
	PerEntityCap  int            `json:"per_entity_cap"`
	Allocated     int            `json:"allocated"`
	Remaining     int            `json:"remaining"`
	Recipients    int            `json:"recipients"`
	PipelineValue float64        `json:"pipeline_value"`
	TrainR2       float64        `json:"train_r2"`
	TestR2        float64        `json:"test_r2"`
	DurationMS    int64          `json:"duration_ms"`
	Assignments   map[string]int `json:"assignments"`
	Error         string         `json:"error,omitempty"`
}

// Query filters records. Zero fields match everything.
type Query struct {
	Start      time.Time
	End        time.Time
	RunID      string
	CustomerID string
	// Limit keeps the most recent records. Zero means no limit.
	Limit int
}

// Match reports whether r satisfies the filters other than Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.CustomerID != "" {
		if _, ok := r.Assignments[q.CustomerID]; !ok {
			return false
		}
	}
	return true
}

// Store persists run records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Query returns matching records oldest first.
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

func finish(recs []Record, limit int) []Record {
	slices.SortStableFunc(recs, func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) })
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

package events

import "time"

// RunEvent is published once per pipeline run.
type RunEvent struct {
	RunID         string
	Customers     int
	Budget        int
	Allocated     int
	Recipients    int
	PipelineValue float64
	TrainR2       float64
	TestR2        float64
	Duration      time.Duration
	Err           error
}

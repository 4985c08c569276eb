package events

import "time"

// Stage names a pipeline step.
type Stage string

const (
	StageGenerate  Stage = "generate"
	StageTrain     Stage = "train"
	StageAttribute Stage = "attribute"
	StageScore     Stage = "score"
	StageAllocate  Stage = "allocate"
	StagePersist   Stage = "persist"
	StagePublish   Stage = "publish"
)

// StageEvent is published when a stage completes. Err is set on failure.
type StageEvent struct {
	RunID    string
	Stage    Stage
	Duration time.Duration
	Err      error
}

package events

import "time"

// PublishEvent reports delivery of one assignment to the action broker.
type PublishEvent struct {
	RunID      string
	MessageID  string
	CustomerID string
	Units      int
	Latency    time.Duration
	Err        error
}

// KnowledgeEvent is published after the knowledge base is reloaded.
type KnowledgeEvent struct {
	Documents int
	Err       error
}

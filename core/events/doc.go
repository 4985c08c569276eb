// Package events defines the pipeline events emitted on the event bus.
//
// Available event types:
//   - StageEvent: a pipeline stage finished or failed
//   - RunEvent: a full pipeline run finished
//   - PublishEvent: an assignment was published to the action broker
//   - KnowledgeEvent: the knowledge base was reloaded
package events

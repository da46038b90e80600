package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by run ID so that many
// concurrent runs can safely share a single Redis server without leaking
// state into each other.
//
// Key pattern: troika:{run_id}:{entity}
// Channel pattern: troika:{run_id}:{event_type}_events

// BoardKey returns the Redis hash key holding a run's board.
// Each hash field is a namespace; each value is that namespace's document.
// Pattern: troika:{run_id}:board
func BoardKey(runID string) string {
	return fmt.Sprintf("troika:%s:board", runID)
}

// BoardEventsChannel returns the Pub/Sub channel for board write/reset
// events of a run.
// Pattern: troika:{run_id}:board_events
func BoardEventsChannel(runID string) string {
	return fmt.Sprintf("troika:%s:board_events", runID)
}

// RunResultKey returns the Redis key holding a run's final result document.
// Pattern: troika:{run_id}:result
func RunResultKey(runID string) string {
	return fmt.Sprintf("troika:%s:result", runID)
}

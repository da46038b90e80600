package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelab/troika/internal/orchestrator"
	"github.com/kestrelab/troika/pkg/blackboard"
)

// RedisSink mirrors terminal results into the run's Redis keyspace, next to
// the board, so other processes can read a finished run's outcome.
type RedisSink struct {
	rdb *redis.Client
}

// NewRedisSink creates a sink connected to the given Redis server.
func NewRedisSink(opts *redis.Options) *RedisSink {
	return &RedisSink{rdb: redis.NewClient(opts)}
}

// WriteResult stores the result document under the run's result key,
// replacing any previous one.
func (s *RedisSink) WriteResult(ctx context.Context, result *orchestrator.Result) error {
	if result.RunID == "" {
		return fmt.Errorf("result has no run ID")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if err := s.rdb.Set(ctx, blackboard.RunResultKey(result.RunID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// Fanout forwards each result to every sink in order, stopping at the first
// failure.
type Fanout []orchestrator.ResultSink

// WriteResult writes the result to each sink.
func (f Fanout) WriteResult(ctx context.Context, result *orchestrator.Result) error {
	for _, s := range f {
		if err := s.WriteResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ orchestrator.ResultSink = (*RedisSink)(nil)
	_ orchestrator.ResultSink = (Fanout)(nil)
)

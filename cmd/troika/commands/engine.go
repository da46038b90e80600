package commands

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/internal/config"
	"github.com/kestrelab/troika/internal/orchestrator"
	"github.com/kestrelab/troika/internal/sink"
	"github.com/kestrelab/troika/pkg/blackboard"
)

// buildEngine wires the production engine from configuration: Gemini for
// generation and judgment, DuckDuckGo for search, a file sink for results,
// and, when a Redis address is configured, Redis-backed boards plus a result
// mirror in the run's keyspace.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*orchestrator.Engine, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	gemini, err := capability.NewGemini(ctx, apiKey, cfg.Model.Name, cfg.Model.MaxOutputTokens)
	if err != nil {
		return nil, err
	}

	searcher := capability.NewDuckDuckGo(time.Duration(cfg.Retrieval.TimeoutSeconds) * time.Second)

	fileSink, err := sink.NewFileSink(cfg.Output.Dir, cfg.Output.ResultFile)
	if err != nil {
		return nil, err
	}

	var engineSink orchestrator.ResultSink = fileSink

	var boards orchestrator.BoardFactory
	if cfg.Redis.Addr != "" {
		redisOpts := &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		boards = func(_ context.Context, runID string) (blackboard.Board, error) {
			return blackboard.NewClient(redisOpts, runID)
		}
		engineSink = sink.Fanout{fileSink, sink.NewRedisSink(redisOpts)}
	}

	return orchestrator.NewEngine(orchestrator.Options{
		Generator:     gemini,
		Searcher:      searcher,
		Judge:         gemini,
		MaxWebResults: cfg.Retrieval.MaxResults,
		MaxRounds:     cfg.Retrieval.MaxRounds,
		RetryBudget:   *cfg.Orchestrator.RetryBudget,
		Boards:        boards,
		Sink:          engineSink,
		Logger:        logger,
	})
}

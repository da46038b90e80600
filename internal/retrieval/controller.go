// Package retrieval drives bounded multi-round web retrieval. Each round
// searches, judges whether the accumulated evidence addresses the query,
// and either stops or derives a fresh keyword set for the next round.
// Results accumulate across rounds - a later round never discards what an
// earlier one found.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/pkg/blackboard"
)

const apiLimitationsNote = "search API may return sparse results; additional rounds with reworked keywords compensate"

// Controller runs up to maxRounds search rounds and assembles the
// retrieval document. Rounds are strictly sequential: round k's keyword
// proposal depends on round k-1's results.
type Controller struct {
	searcher   capability.Searcher
	judge      capability.Judge
	maxResults int
	maxRounds  int
	logger     *zap.Logger
}

// NewController creates a retrieval controller.
// maxRounds and maxResults must be positive; this is validated here so a
// misconfigured round budget fails before any run starts.
func NewController(searcher capability.Searcher, judge capability.Judge, maxResults, maxRounds int, logger *zap.Logger) (*Controller, error) {
	if maxRounds <= 0 {
		return nil, fmt.Errorf("max rounds must be positive, got %d", maxRounds)
	}
	if maxResults <= 0 {
		return nil, fmt.Errorf("max results must be positive, got %d", maxResults)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		searcher:   searcher,
		judge:      judge,
		maxResults: maxResults,
		maxRounds:  maxRounds,
		logger:     logger,
	}, nil
}

// Retrieve obtains web evidence for the query, bounded by the round budget.
//
// Empty keywords short-circuit to status=no_results with zero rounds and no
// external call. The returned document's results are the union across
// rounds (duplicate URLs suppressed, first occurrence kept, discovery
// order); status reflects the last round's outcome. The only error returned
// is context cancellation - search failures are absorbed into the document.
func (c *Controller) Retrieve(ctx context.Context, query string, keywords []string) (*blackboard.RetrievalResult, error) {
	result := &blackboard.RetrievalResult{
		Query:          query,
		SearchKeywords: []string{},
		Results:        []blackboard.SearchResult{},
		Status:         blackboard.RetrievalStatusNoResults,
		Rounds:         0,
		Metadata: blackboard.RetrievalMetadata{
			APILimitations: apiLimitationsNote,
		},
	}

	if len(keywords) == 0 {
		result.Metadata.RetrievalNote = "no search keywords in plan; retrieval skipped"
		return result, nil
	}

	seenURLs := make(map[string]bool)
	seenKeywords := make(map[string]bool)

	for result.Rounds < c.maxRounds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Rounds++
		for _, kw := range keywords {
			if !seenKeywords[kw] {
				seenKeywords[kw] = true
				result.SearchKeywords = append(result.SearchKeywords, kw)
			}
		}

		found, err := c.searcher.Search(ctx, keywords, c.maxResults)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			result.Status = blackboard.RetrievalStatusError

			var searchErr *capability.SearchError
			if errors.As(err, &searchErr) && !searchErr.Retryable {
				c.logger.Warn("search failed permanently, stopping retrieval",
					zap.Int("round", result.Rounds), zap.Error(err))
				result.Metadata.RetrievalNote = fmt.Sprintf("stopped after round %d: unrecoverable search failure", result.Rounds)
				return result, nil
			}

			c.logger.Warn("search round failed",
				zap.Int("round", result.Rounds), zap.Error(err))

		case len(found) == 0:
			result.Status = blackboard.RetrievalStatusNoResults
			c.logger.Info("search round returned nothing",
				zap.Int("round", result.Rounds), zap.Strings("keywords", keywords))

		default:
			for _, r := range found {
				if !seenURLs[r.URL] {
					seenURLs[r.URL] = true
					result.Results = append(result.Results, r)
				}
			}
			result.Status = blackboard.RetrievalStatusSuccess

			sufficient, judgeErr := c.judge.JudgeSufficiency(ctx, query, result.Results)
			if judgeErr != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				// An unavailable judgment is treated as insufficient: spend
				// another round rather than accept unchecked evidence.
				c.logger.Warn("sufficiency judgment unavailable", zap.Error(judgeErr))
				sufficient = false
			}

			if sufficient {
				result.Metadata.RetrievalNote = fmt.Sprintf("evidence judged sufficient after round %d", result.Rounds)
				c.logger.Info("retrieval stopped early",
					zap.Int("rounds", result.Rounds), zap.Int("results", len(result.Results)))
				return result, nil
			}
		}

		if result.Rounds == c.maxRounds {
			break
		}

		next, err := c.judge.ProposeKeywords(ctx, query, result)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Warn("keyword proposal failed, stopping retrieval", zap.Error(err))
			result.Metadata.RetrievalNote = fmt.Sprintf("stopped after round %d: could not derive new keywords", result.Rounds)
			return result, nil
		}
		if len(next) == 0 {
			result.Metadata.RetrievalNote = fmt.Sprintf("stopped after round %d: no new keywords proposed", result.Rounds)
			return result, nil
		}
		keywords = next
	}

	result.Metadata.RetrievalNote = fmt.Sprintf("round budget exhausted after %d rounds", result.Rounds)
	c.logger.Info("retrieval exhausted round budget",
		zap.Int("rounds", result.Rounds),
		zap.Int("results", len(result.Results)),
		zap.String("status", string(result.Status)))
	return result, nil
}

package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/pkg/blackboard"
)

func results(urls ...string) []blackboard.SearchResult {
	out := make([]blackboard.SearchResult, len(urls))
	for i, url := range urls {
		out[i] = blackboard.SearchResult{Title: url, URL: url, Snippet: "snippet for " + url}
	}
	return out
}

func newTestController(t *testing.T, searcher *capability.StubSearcher, judge *capability.StubJudge, maxRounds int) *Controller {
	c, err := NewController(searcher, judge, 3, maxRounds, nil)
	require.NoError(t, err)
	return c
}

func TestNewControllerValidation(t *testing.T) {
	searcher := &capability.StubSearcher{}
	judge := &capability.StubJudge{}

	t.Run("rejects non-positive max rounds", func(t *testing.T) {
		_, err := NewController(searcher, judge, 3, 0, nil)
		assert.Error(t, err)
		_, err = NewController(searcher, judge, 3, -1, nil)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive max results", func(t *testing.T) {
		_, err := NewController(searcher, judge, 0, 3, nil)
		assert.Error(t, err)
	})
}

func TestRetrieveEmptyKeywords(t *testing.T) {
	searcher := &capability.StubSearcher{}
	c := newTestController(t, searcher, &capability.StubJudge{}, 3)

	result, err := c.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.Equal(t, blackboard.RetrievalStatusNoResults, result.Status)
	assert.Equal(t, 0, result.Rounds)
	assert.Equal(t, 0, searcher.Calls, "no external call for empty keywords")
}

func TestRetrieveEarlyStop(t *testing.T) {
	searcher := &capability.StubSearcher{
		Rounds: []capability.StubRound{
			{Results: results("https://a")},
			{Results: results("https://b")},
		},
	}
	judge := &capability.StubJudge{Sufficient: []bool{true}}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rounds, "sufficient after round 1 means exactly 1 round")
	assert.Equal(t, 1, searcher.Calls)
	assert.Equal(t, blackboard.RetrievalStatusSuccess, result.Status)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "https://a", result.Results[0].URL)
}

func TestRetrieveMonotonicAccumulation(t *testing.T) {
	searcher := &capability.StubSearcher{
		Rounds: []capability.StubRound{
			{Results: results("https://a", "https://b")},
			{Results: results("https://b", "https://c")}, // b is a duplicate
			{Results: results("https://d")},
		},
	}
	judge := &capability.StubJudge{
		Sufficient: []bool{false, false, false},
		Proposals:  [][]string{{"kw2"}, {"kw3"}},
	}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw1"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Rounds)
	assert.Equal(t, 3, searcher.Calls, "never exceeds max rounds")

	// Union across rounds, duplicates suppressed, discovery order kept.
	var urls []string
	for _, r := range result.Results {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"https://a", "https://b", "https://c", "https://d"}, urls)

	// Proposed keywords feed the following rounds.
	assert.Equal(t, [][]string{{"kw1"}, {"kw2"}, {"kw3"}}, searcher.KeywordLog)
	assert.Equal(t, []string{"kw1", "kw2", "kw3"}, result.SearchKeywords)
}

func TestRetrieveNoResultsExhaustsRounds(t *testing.T) {
	searcher := &capability.StubSearcher{}
	judge := &capability.StubJudge{Proposals: [][]string{{"kw2"}, {"kw3"}}}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw1"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Rounds)
	assert.Equal(t, blackboard.RetrievalStatusNoResults, result.Status)
	assert.Empty(t, result.Results)
	assert.Equal(t, 0, judge.SufficiencyCalls, "empty rounds are insufficient without a judgment call")
}

func TestRetrieveUnrecoverableSearchFailure(t *testing.T) {
	searcher := &capability.StubSearcher{
		Rounds: []capability.StubRound{
			{Results: results("https://a")},
			{Err: &capability.SearchError{Retryable: false, Err: fmt.Errorf("api key revoked")}},
		},
	}
	judge := &capability.StubJudge{Proposals: [][]string{{"kw2"}}}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw1"})
	require.NoError(t, err)

	// Exits immediately with what was accumulated.
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, 2, searcher.Calls)
	assert.Equal(t, blackboard.RetrievalStatusError, result.Status)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "https://a", result.Results[0].URL)
}

func TestRetrieveTransientFailureConsumesRound(t *testing.T) {
	searcher := &capability.StubSearcher{
		Rounds: []capability.StubRound{
			{Err: &capability.SearchError{Retryable: true, Err: fmt.Errorf("timeout")}},
			{Results: results("https://a")},
		},
	}
	judge := &capability.StubJudge{
		Proposals:  [][]string{{"kw2"}},
		Sufficient: []bool{true},
	}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, blackboard.RetrievalStatusSuccess, result.Status)
	require.Len(t, result.Results, 1)
}

func TestRetrieveStopsWhenNoKeywordsProposed(t *testing.T) {
	searcher := &capability.StubSearcher{
		Rounds: []capability.StubRound{
			{Results: results("https://a")},
		},
	}
	// Insufficient, and the judge has nothing better to suggest.
	judge := &capability.StubJudge{}
	c := newTestController(t, searcher, judge, 3)

	result, err := c.Retrieve(context.Background(), "query", []string{"kw1"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rounds)
	assert.Equal(t, 1, searcher.Calls)
	assert.Equal(t, blackboard.RetrievalStatusSuccess, result.Status)
}

func TestRetrieveCancelledContext(t *testing.T) {
	searcher := &capability.StubSearcher{}
	c := newTestController(t, searcher, &capability.StubJudge{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Retrieve(ctx, "query", []string{"kw"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, searcher.Calls)
}

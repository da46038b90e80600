package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrelab/troika/pkg/blackboard"
)

const (
	duckDuckGoEndpoint = "https://api.duckduckgo.com/"
	userAgent          = "troika/1.0"
)

// DuckDuckGo implements Searcher against the DuckDuckGo Instant Answer API.
// The API returns related topics rather than full web results, so rounds
// are cheap but sparse - the retrieval controller's multi-round strategy
// exists to compensate.
type DuckDuckGo struct {
	httpClient *http.Client
	endpoint   string
}

// NewDuckDuckGo creates a searcher with the given request timeout.
func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   duckDuckGoEndpoint,
	}
}

// ddgResponse mirrors the subset of the Instant Answer payload we consume.
type ddgResponse struct {
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

// Search runs one query round. Transport and server failures come back as
// retryable SearchErrors; context cancellation is returned as-is.
func (d *DuckDuckGo) Search(ctx context.Context, keywords []string, maxResults int) ([]blackboard.SearchResult, error) {
	if maxResults <= 0 {
		return nil, &SearchError{Retryable: false, Err: fmt.Errorf("maxResults must be positive, got %d", maxResults)}
	}

	query := strings.Join(keywords, " ")
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_redirect", "1")
	params.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &SearchError{Retryable: false, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SearchError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SearchError{
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:       fmt.Errorf("duckduckgo returned status %d", resp.StatusCode),
		}
	}

	var payload ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &SearchError{Retryable: true, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return flattenResults(payload, maxResults), nil
}

// flattenResults maps the Instant Answer payload to search results, capped
// at maxResults. The abstract (when present) counts as the first result.
func flattenResults(payload ddgResponse, maxResults int) []blackboard.SearchResult {
	results := make([]blackboard.SearchResult, 0, maxResults)

	if payload.AbstractURL != "" && payload.AbstractText != "" {
		results = append(results, blackboard.SearchResult{
			Title:   payload.Heading,
			URL:     payload.AbstractURL,
			Snippet: payload.AbstractText,
		})
	}

	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, topic := range topics {
			if len(results) >= maxResults {
				return
			}
			if topic.Text != "" && topic.FirstURL != "" {
				results = append(results, blackboard.SearchResult{
					Title:   topic.Text,
					URL:     topic.FirstURL,
					Snippet: topic.Text,
				})
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
			}
		}
	}
	walk(payload.RelatedTopics)

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// Package capability defines the external collaborators the orchestration
// core depends on: language-model generation, web search, and the judgment
// calls (sufficiency, keyword proposal, answer soundness) the original
// system delegates to a model. The core stays agnostic to implementations;
// production wiring uses Gemini and DuckDuckGo, tests use the deterministic
// stubs in this package.
package capability

import (
	"context"
	"fmt"

	"github.com/kestrelab/troika/pkg/blackboard"
)

// GenerateRequest is the prompt context handed to a Generator. Upstream
// documents are included when the stage consumes them: the planner gets
// only the query and attachment summaries, the reasoner additionally gets
// the plan and retrieval documents.
type GenerateRequest struct {
	Stage       blackboard.Stage
	Query       string
	Attachments []string // attachment summaries, not raw paths
	Plan        *blackboard.Plan
	Retrieval   *blackboard.RetrievalResult
}

// Generator produces one stage's candidate document. The returned content
// is opaque to the caller except for its declared JSON shape; structural
// validation happens at the step-executor boundary.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (blackboard.Document, error)
}

// Searcher performs one web search round.
// Implementations report transient failures as retryable SearchErrors so
// the retrieval controller can spend another round on them, and terminal
// failures as non-retryable ones.
type Searcher interface {
	Search(ctx context.Context, keywords []string, maxResults int) ([]blackboard.SearchResult, error)
}

// Assessment is the outcome of the reviewer's logic/accuracy judgment call.
type Assessment struct {
	Sound       bool
	Category    string // "logic" or "accuracy"; meaningful when !Sound
	PlanAtFault bool   // true when the mismatch traces back to a malformed plan
	Explanation string
}

// Judge abstracts every model-delegated judgment the core makes. Keeping
// these behind one interface means the state machine, retry budget, and
// accumulation logic are fully testable without a live model.
type Judge interface {
	// JudgeSufficiency decides whether the accumulated results address the
	// query well enough to stop retrieving.
	JudgeSufficiency(ctx context.Context, query string, results []blackboard.SearchResult) (bool, error)

	// ProposeKeywords derives the next round's keyword set from the rounds
	// so far (broaden, narrow, switch language, add recency terms).
	ProposeKeywords(ctx context.Context, query string, prior *blackboard.RetrievalResult) ([]string, error)

	// JudgeAnswer assesses logical consistency and accuracy of the answer
	// against the query and plan.
	JudgeAnswer(ctx context.Context, plan *blackboard.Plan, reasoning *blackboard.ReasoningResult) (Assessment, error)
}

// GenerationError wraps a failed language-model call. The orchestrator
// treats it as a stage failure subject to the stage's retry budget.
type GenerationError struct {
	Stage blackboard.Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for stage %q: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// SearchError wraps a failed search round. Retryable errors are absorbed by
// the retrieval controller's round budget; non-retryable ones make it exit
// immediately with whatever was accumulated.
type SearchError struct {
	Retryable bool
	Err       error
}

func (e *SearchError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("search failed (%s): %v", kind, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

package blackboard

import (
	"encoding/json"
	"fmt"
)

// Document is the raw JSON form of a single namespace's content.
// The board stores documents opaquely; typed access goes through the
// record types below.
type Document = json.RawMessage

// Namespace identifies one slot on the blackboard. Each namespace holds at
// most one current document.
type Namespace string

const (
	// NamespacePlan holds the planner's Plan document.
	NamespacePlan Namespace = "plan"

	// NamespaceRetrieval holds the retrieval controller's RetrievalResult.
	NamespaceRetrieval Namespace = "retrieval"

	// NamespaceReasoning holds the reasoner's ReasoningResult.
	NamespaceReasoning Namespace = "reasoning"
)

// Namespaces lists every namespace in board order. Used by full resets and
// snapshots.
var Namespaces = []Namespace{NamespacePlan, NamespaceRetrieval, NamespaceReasoning}

// Validate checks if the Namespace is a known slot.
func (n Namespace) Validate() error {
	switch n {
	case NamespacePlan, NamespaceRetrieval, NamespaceReasoning:
		return nil
	default:
		return fmt.Errorf("unknown namespace: %q", n)
	}
}

// Stage identifies one logical agent role invoked by the orchestrator.
type Stage string

const (
	// StagePlanner analyses the query and produces the Plan.
	StagePlanner Stage = "planner"

	// StageRetriever gathers web evidence via the retrieval controller.
	StageRetriever Stage = "retriever"

	// StageReasoner derives the final answer from plan and evidence.
	StageReasoner Stage = "reasoner"
)

// Validate checks if the Stage is a valid enum value.
func (s Stage) Validate() error {
	switch s {
	case StagePlanner, StageRetriever, StageReasoner:
		return nil
	default:
		return fmt.Errorf("unknown stage: %q", s)
	}
}

// StageNamespace returns the namespace a stage writes its output to.
func StageNamespace(s Stage) Namespace {
	switch s {
	case StagePlanner:
		return NamespacePlan
	case StageRetriever:
		return NamespaceRetrieval
	case StageReasoner:
		return NamespaceReasoning
	default:
		return ""
	}
}

// TaskType classifies what a query needs: web retrieval, pure reasoning,
// or both.
type TaskType string

const (
	TaskTypeRetrieval TaskType = "retrieval"
	TaskTypeReasoning TaskType = "reasoning"
	TaskTypeHybrid    TaskType = "hybrid"
)

// Validate checks if the TaskType is a valid enum value.
func (t TaskType) Validate() error {
	switch t {
	case TaskTypeRetrieval, TaskTypeReasoning, TaskTypeHybrid:
		return nil
	default:
		return fmt.Errorf("unknown task type: %q", t)
	}
}

// RequiresRetrieval reports whether the task type needs the retrieval stage.
func (t TaskType) RequiresRetrieval() bool {
	return t == TaskTypeRetrieval || t == TaskTypeHybrid
}

// RetrievalStatus reflects the outcome of the last retrieval round.
type RetrievalStatus string

const (
	RetrievalStatusSuccess   RetrievalStatus = "success"
	RetrievalStatusNoResults RetrievalStatus = "no_results"
	RetrievalStatusError     RetrievalStatus = "error"
)

// Validate checks if the RetrievalStatus is a valid enum value.
func (s RetrievalStatus) Validate() error {
	switch s {
	case RetrievalStatusSuccess, RetrievalStatusNoResults, RetrievalStatusError:
		return nil
	default:
		return fmt.Errorf("unknown retrieval status: %q", s)
	}
}

// Confidence is the reasoner's self-reported certainty in its answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Validate checks if the Confidence is a valid enum value.
func (c Confidence) Validate() error {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return nil
	default:
		return fmt.Errorf("unknown confidence: %q", c)
	}
}

// PlanStep is one unit of work in the plan, assigned to a stage.
type PlanStep struct {
	ID    string `json:"id"`
	Owner Stage  `json:"owner"`
	Desc  string `json:"desc"`
}

// Bounds constrains numeric answers. Nil pointers mean unbounded on that side.
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Constraints captures the output requirements the planner extracted from
// the query (e.g. "answer with a number only", required JSON keys).
type Constraints struct {
	Format       string   `json:"format,omitempty"`
	RequiredKeys []string `json:"required_keys,omitempty"`
	Bounds       *Bounds  `json:"bounds,omitempty"`
}

// Plan is the document in the plan namespace. Produced once per run (or per
// planner retry); consumed by the retrieval controller and the reasoner.
type Plan struct {
	Query          string      `json:"query"`
	Attachments    []string    `json:"attachments"`
	TaskType       TaskType    `json:"task_type"`
	SearchKeywords []string    `json:"search_keywords"`
	ReasoningSteps []string    `json:"reasoning_steps"`
	Steps          []PlanStep  `json:"steps"`
	Constraints    Constraints `json:"constraints"`
	ReasoningHints []string    `json:"reasoning_hints"`
}

// Validate checks if the Plan has valid field values.
func (p *Plan) Validate() error {
	if p.Query == "" {
		return fmt.Errorf("plan query cannot be empty")
	}

	if err := p.TaskType.Validate(); err != nil {
		return fmt.Errorf("invalid task type: %w", err)
	}

	if p.TaskType.RequiresRetrieval() && len(p.SearchKeywords) == 0 {
		return fmt.Errorf("task type %q requires at least one search keyword", p.TaskType)
	}

	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("plan step at index %d has empty id", i)
		}
		if err := step.Owner.Validate(); err != nil {
			return fmt.Errorf("plan step %q: %w", step.ID, err)
		}
	}

	return nil
}

// SearchResult is one web result gathered by a retrieval round.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// RetrievalMetadata carries non-essential context about how retrieval went.
type RetrievalMetadata struct {
	APILimitations string `json:"api_limitations,omitempty"`
	RetrievalNote  string `json:"retrieval_note,omitempty"`
}

// RetrievalResult is the document in the retrieval namespace. Built
// incrementally across rounds: results accumulate, rounds increments, and
// status reflects the last round's outcome.
type RetrievalResult struct {
	Query          string            `json:"query"`
	SearchKeywords []string          `json:"search_keywords"`
	Results        []SearchResult    `json:"results"`
	Status         RetrievalStatus   `json:"status"`
	Rounds         int               `json:"rounds"`
	Metadata       RetrievalMetadata `json:"metadata"`
}

// Validate checks if the RetrievalResult has valid field values.
func (r *RetrievalResult) Validate() error {
	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if r.Rounds < 0 {
		return fmt.Errorf("rounds cannot be negative, got %d", r.Rounds)
	}

	for i, result := range r.Results {
		if result.URL == "" {
			return fmt.Errorf("search result at index %d has empty URL", i)
		}
	}

	return nil
}

// ContainsURL reports whether the accumulated results include the given URL.
// Used by the quality reviewer to verify citations against evidence.
func (r *RetrievalResult) ContainsURL(url string) bool {
	for _, result := range r.Results {
		if result.URL == url {
			return true
		}
	}
	return false
}

// ReasoningResult is the document in the reasoning namespace. Produced once
// per reasoner attempt.
type ReasoningResult struct {
	Answer       string     `json:"answer"`
	Reasoning    string     `json:"reasoning"`
	Citations    []string   `json:"citations"`
	Confidence   Confidence `json:"confidence"`
	EvidenceUsed []string   `json:"evidence_used"`
}

// Validate checks if the ReasoningResult has valid field values.
func (r *ReasoningResult) Validate() error {
	if r.Answer == "" {
		return fmt.Errorf("answer cannot be empty")
	}

	if r.Reasoning == "" {
		return fmt.Errorf("reasoning cannot be empty")
	}

	if err := r.Confidence.Validate(); err != nil {
		return fmt.Errorf("invalid confidence: %w", err)
	}

	return nil
}

// requiredKeys maps each namespace to the top-level JSON keys a candidate
// document must carry before it may be written to the board.
var requiredKeys = map[Namespace][]string{
	NamespacePlan:      {"query", "task_type"},
	NamespaceRetrieval: {"query", "results", "status", "rounds"},
	NamespaceReasoning: {"answer", "reasoning", "citations", "confidence", "evidence_used"},
}

// RequiredKeys returns the top-level keys a namespace's document must have.
func RequiredKeys(ns Namespace) []string {
	return requiredKeys[ns]
}

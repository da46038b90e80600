// Package step provides the uniform wrapper around invoking one logical
// agent stage: read the namespaces the stage depends on, invoke its
// capability, validate the candidate document's shape, and write it to the
// blackboard only on success.
package step

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/internal/retrieval"
	"github.com/kestrelab/troika/pkg/blackboard"
)

// SchemaError reports a candidate document that failed structural
// validation. The document is never written; prior namespace content, if
// any, remains untouched.
type SchemaError struct {
	Namespace blackboard.Namespace
	Missing   []string
	Err       error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("document for namespace %q is missing required keys: %s",
			e.Namespace, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("document for namespace %q failed validation: %v", e.Namespace, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Executor invokes stages against one run's board.
type Executor struct {
	board     blackboard.Board
	generator capability.Generator
	retriever *retrieval.Controller
	logger    *zap.Logger
}

// NewExecutor creates a step executor for one run.
func NewExecutor(board blackboard.Board, generator capability.Generator, retriever *retrieval.Controller, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		board:     board,
		generator: generator,
		retriever: retriever,
		logger:    logger,
	}
}

// Run invokes one stage and writes its validated output to the board.
// On any failure nothing is written and the board keeps whatever the
// namespace held before.
func (e *Executor) Run(ctx context.Context, stage blackboard.Stage, query string, attachments []string) error {
	if err := stage.Validate(); err != nil {
		return err
	}

	var (
		doc blackboard.Document
		err error
	)

	switch stage {
	case blackboard.StagePlanner:
		doc, err = e.runPlanner(ctx, query, attachments)
	case blackboard.StageRetriever:
		doc, err = e.runRetriever(ctx)
	case blackboard.StageReasoner:
		doc, err = e.runReasoner(ctx, query, attachments)
	}
	if err != nil {
		e.logger.Warn("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return err
	}

	ns := blackboard.StageNamespace(stage)
	if err := e.board.Write(ctx, ns, doc); err != nil {
		return fmt.Errorf("failed to write %q output: %w", stage, err)
	}

	e.logger.Info("stage completed",
		zap.String("stage", string(stage)),
		zap.String("namespace", string(ns)))
	return nil
}

// runPlanner invokes the planning capability. The planner reads nothing
// persisted - only the query and attachment summaries passed in.
func (e *Executor) runPlanner(ctx context.Context, query string, attachments []string) (blackboard.Document, error) {
	doc, err := e.generator.Generate(ctx, capability.GenerateRequest{
		Stage:       blackboard.StagePlanner,
		Query:       query,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}

	var plan blackboard.Plan
	if err := validateDocument(blackboard.NamespacePlan, doc, &plan); err != nil {
		return nil, err
	}
	return doc, nil
}

// runRetriever delegates to the retrieval controller rather than a single
// capability call. It requires a plan on the board.
func (e *Executor) runRetriever(ctx context.Context) (blackboard.Document, error) {
	plan, err := e.readPlan(ctx)
	if err != nil {
		return nil, err
	}

	result, err := e.retriever.Retrieve(ctx, plan.Query, plan.SearchKeywords)
	if err != nil {
		return nil, err
	}

	doc, err := blackboard.MarshalDocument(result)
	if err != nil {
		return nil, err
	}

	var check blackboard.RetrievalResult
	if err := validateDocument(blackboard.NamespaceRetrieval, doc, &check); err != nil {
		return nil, err
	}
	return doc, nil
}

// runReasoner invokes the reasoning capability with the plan and whatever
// retrieval evidence exists.
func (e *Executor) runReasoner(ctx context.Context, query string, attachments []string) (blackboard.Document, error) {
	plan, err := e.readPlan(ctx)
	if err != nil {
		return nil, err
	}

	var retrievalResult *blackboard.RetrievalResult
	raw, err := e.board.Read(ctx, blackboard.NamespaceRetrieval)
	switch {
	case err == nil:
		var r blackboard.RetrievalResult
		if err := blackboard.UnmarshalDocument(raw, &r); err != nil {
			return nil, err
		}
		retrievalResult = &r
	case blackboard.IsNotFound(err):
		// Reasoning-only tasks have no retrieval document.
	default:
		return nil, err
	}

	doc, err := e.generator.Generate(ctx, capability.GenerateRequest{
		Stage:       blackboard.StageReasoner,
		Query:       query,
		Attachments: attachments,
		Plan:        plan,
		Retrieval:   retrievalResult,
	})
	if err != nil {
		return nil, err
	}

	var reasoning blackboard.ReasoningResult
	if err := validateDocument(blackboard.NamespaceReasoning, doc, &reasoning); err != nil {
		return nil, err
	}
	return doc, nil
}

func (e *Executor) readPlan(ctx context.Context) (*blackboard.Plan, error) {
	raw, err := e.board.Read(ctx, blackboard.NamespacePlan)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return nil, fmt.Errorf("no plan on the board: %w", err)
		}
		return nil, err
	}

	var plan blackboard.Plan
	if err := blackboard.UnmarshalDocument(raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// validateDocument checks required top-level keys, then decodes into the
// typed record and runs its Validate method.
func validateDocument(ns blackboard.Namespace, doc blackboard.Document, record interface{ Validate() error }) error {
	if missing := blackboard.MissingKeys(doc, blackboard.RequiredKeys(ns)); len(missing) > 0 {
		return &SchemaError{Namespace: ns, Missing: missing}
	}

	if err := blackboard.UnmarshalDocument(doc, record); err != nil {
		return &SchemaError{Namespace: ns, Err: err}
	}

	if err := record.Validate(); err != nil {
		return &SchemaError{Namespace: ns, Err: err}
	}

	return nil
}

// Package orchestrator runs the deterministic control flow of one query:
// plan, optionally retrieve, reason, review, and rework the implicated
// stage while its retry budget lasts. All coordination state lives on the
// run's blackboard; the engine itself only tracks budgets and the current
// state.
package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/internal/retrieval"
	"github.com/kestrelab/troika/internal/review"
	"github.com/kestrelab/troika/internal/step"
	"github.com/kestrelab/troika/pkg/blackboard"
)

// State is the engine's position in the run lifecycle.
type State string

const (
	StateInit       State = "init"
	StatePlanning   State = "planning"
	StateRetrieving State = "retrieving"
	StateReasoning  State = "reasoning"
	StateReviewing  State = "reviewing"

	// StateDone means the answer passed review.
	StateDone State = "done"

	// StateExhausted means the retry budget ran out (or a review judgment
	// became unavailable) and the latest answer is emitted with a quality
	// warning instead of being withheld.
	StateExhausted State = "exhausted"
)

// Request describes one query to answer.
type Request struct {
	// RunID namespaces the run's board. Generated when empty.
	RunID string

	// Query is the user's question.
	Query string

	// Attachments are pre-built attachment summaries fed to the planner and
	// reasoner prompts.
	Attachments []string
}

// Snapshot is a copy of every populated board namespace at run end.
type Snapshot = map[blackboard.Namespace]blackboard.Document

// Result is the terminal outcome of a run.
type Result struct {
	RunID          string                      `json:"run_id"`
	State          State                       `json:"state"`
	Answer         string                      `json:"answer"`
	Confidence     blackboard.Confidence       `json:"confidence,omitempty"`
	QualityWarning bool                        `json:"quality_warning"`
	WarningReason  string                      `json:"warning_reason,omitempty"`
	Verdict        *review.Verdict             `json:"verdict,omitempty"`
	Reasoning      *blackboard.ReasoningResult `json:"reasoning,omitempty"`
	Board          Snapshot                    `json:"board,omitempty"`
}

// ResultSink persists terminal results. Implementations live elsewhere; the
// engine only needs the write.
type ResultSink interface {
	WriteResult(ctx context.Context, result *Result) error
}

// BoardFactory builds the board one run coordinates through. The default
// factory returns an in-process board; a Redis-backed factory makes runs
// observable from other processes.
type BoardFactory func(ctx context.Context, runID string) (blackboard.Board, error)

// Options configures an Engine.
type Options struct {
	Generator capability.Generator
	Searcher  capability.Searcher
	Judge     capability.Judge

	// MaxWebResults caps results per search round.
	MaxWebResults int

	// MaxRounds bounds retrieval rounds per retriever invocation. A reworked
	// retriever gets the full budget again.
	MaxRounds int

	// RetryBudget is the number of extra invocations each stage may consume,
	// across failures and review reworks combined.
	RetryBudget int

	// Boards defaults to in-process boards when nil.
	Boards BoardFactory

	// Sink, when set, receives every terminal result.
	Sink ResultSink

	Logger *zap.Logger
}

// Engine executes runs. Safe for concurrent use: each run gets its own
// board and executor, and the shared collaborators are stateless.
type Engine struct {
	generator   capability.Generator
	judge       capability.Judge
	controller  *retrieval.Controller
	reviewer    *review.Reviewer
	retryBudget int
	boards      BoardFactory
	sink        ResultSink
	logger      *zap.Logger
}

// NewEngine validates the options and builds an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if opts.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if opts.RetryBudget < 0 {
		return nil, fmt.Errorf("retry budget cannot be negative, got %d", opts.RetryBudget)
	}

	controller, err := retrieval.NewController(opts.Searcher, opts.Judge, opts.MaxWebResults, opts.MaxRounds, opts.Logger)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	boards := opts.Boards
	if boards == nil {
		boards = func(context.Context, string) (blackboard.Board, error) {
			return blackboard.NewMemory(), nil
		}
	}

	return &Engine{
		generator:   opts.Generator,
		judge:       opts.Judge,
		controller:  controller,
		reviewer:    review.NewReviewer(opts.Judge, logger),
		retryBudget: opts.RetryBudget,
		boards:      boards,
		sink:        opts.Sink,
		logger:      logger,
	}, nil
}

// Run answers one query. A non-nil error means no answer could be produced
// at all (invalid request, planner or reasoner hard failure, cancellation);
// quality shortfalls instead surface as StateExhausted with QualityWarning
// set on the result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	logger := e.logger.With(zap.String("run_id", req.RunID))
	logger.Info("run started", zap.String("query", req.Query))

	board, err := e.boards(ctx, req.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	if closer, ok := board.(io.Closer); ok {
		defer closer.Close()
	}

	run := &runState{
		engine:   e,
		req:      req,
		board:    board,
		executor: step.NewExecutor(board, e.generator, e.controller, logger),
		logger:   logger,
		allowance: map[blackboard.Stage]int{
			blackboard.StagePlanner:   1 + e.retryBudget,
			blackboard.StageRetriever: 1 + e.retryBudget,
			blackboard.StageReasoner:  1 + e.retryBudget,
		},
	}

	result, err := run.execute(ctx)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return nil, err
	}

	logger.Info("run finished",
		zap.String("state", string(result.State)),
		zap.Bool("quality_warning", result.QualityWarning))

	if e.sink != nil {
		if sinkErr := e.sink.WriteResult(ctx, result); sinkErr != nil {
			logger.Error("failed to persist result", zap.Error(sinkErr))
		}
	}
	return result, nil
}

// runState carries one run's mutable state through the state machine.
type runState struct {
	engine    *Engine
	req       Request
	board     blackboard.Board
	executor  *step.Executor
	logger    *zap.Logger
	allowance map[blackboard.Stage]int
	state     State
}

// invoke runs a stage, consuming one allowance unit per attempt and
// retrying failed attempts while allowance remains.
func (r *runState) invoke(ctx context.Context, stage blackboard.Stage) error {
	var lastErr error
	for r.allowance[stage] > 0 {
		r.allowance[stage]--

		lastErr = r.executor.Run(ctx, stage, r.req.Query, r.req.Attachments)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}

		if r.allowance[stage] > 0 {
			r.logger.Warn("stage failed, retrying",
				zap.String("stage", string(stage)),
				zap.Int("attempts_left", r.allowance[stage]),
				zap.Error(lastErr))
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("stage %q has no attempts left", stage)
	}
	return lastErr
}

func (r *runState) execute(ctx context.Context) (*Result, error) {
	r.state = StateInit

	// Boards can outlive a run (Redis-backed boards with a reused run ID);
	// a document left behind by an earlier run must never feed this one.
	if err := r.board.ResetAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset board: %w", err)
	}

	r.state = StatePlanning
	if err := r.invoke(ctx, blackboard.StagePlanner); err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	plan, err := r.readPlan(ctx)
	if err != nil {
		return nil, err
	}

	if plan.TaskType.RequiresRetrieval() {
		r.state = StateRetrieving
		if err := r.invoke(ctx, blackboard.StageRetriever); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Fail soft: the reasoner can still attempt an answer from the
			// plan alone, and review will weigh the missing evidence.
			r.logger.Warn("retrieval abandoned, reasoning without fresh evidence", zap.Error(err))
		}
	}

	r.state = StateReasoning
	if err := r.invoke(ctx, blackboard.StageReasoner); err != nil {
		return nil, fmt.Errorf("reasoning failed: %w", err)
	}

	return r.reviewLoop(ctx, plan)
}

// reviewLoop alternates review and rework until the answer passes or the
// implicated stage runs out of attempts.
func (r *runState) reviewLoop(ctx context.Context, plan *blackboard.Plan) (*Result, error) {
	for {
		r.state = StateReviewing

		retrievalDoc, err := r.readRetrieval(ctx)
		if err != nil {
			return nil, err
		}
		reasoning, err := r.readReasoning(ctx)
		if err != nil {
			return nil, err
		}

		verdict, err := r.engine.reviewer.Review(ctx, plan, retrievalDoc, reasoning)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// The answer exists but cannot be judged. Emitting it flagged
			// beats withholding it.
			r.logger.Warn("review unavailable, emitting unreviewed answer", zap.Error(err))
			return r.terminal(ctx, StateExhausted, reasoning, nil,
				"review judgment unavailable; answer is unreviewed")
		}

		if verdict.Passed {
			return r.terminal(ctx, StateDone, reasoning, &verdict, "")
		}

		stage := verdict.ImplicatedStage
		if r.allowance[stage] == 0 {
			return r.terminal(ctx, StateExhausted, reasoning, &verdict,
				fmt.Sprintf("retry budget exhausted for stage %q: %s", stage, verdict.Explanation))
		}

		r.logger.Info("reworking stage after failed review",
			zap.String("stage", string(stage)),
			zap.String("defect", string(verdict.Defect)))

		plan, err = r.rework(ctx, stage, plan)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// Rework could not produce a new answer; the latest one stands.
			return r.terminal(ctx, StateExhausted, reasoning, &verdict,
				fmt.Sprintf("rework of stage %q failed: %v", stage, err))
		}
	}
}

// rework re-runs the implicated stage and everything downstream of it, then
// hands back for another review. A reworked plan invalidates the prior
// retrieval and reasoning documents, so those namespaces are reset first.
func (r *runState) rework(ctx context.Context, stage blackboard.Stage, plan *blackboard.Plan) (*blackboard.Plan, error) {
	switch stage {
	case blackboard.StagePlanner:
		r.state = StatePlanning
		if err := r.invoke(ctx, blackboard.StagePlanner); err != nil {
			return nil, err
		}
		if err := r.board.Reset(ctx, blackboard.NamespaceRetrieval); err != nil {
			return nil, err
		}
		if err := r.board.Reset(ctx, blackboard.NamespaceReasoning); err != nil {
			return nil, err
		}

		fresh, err := r.readPlan(ctx)
		if err != nil {
			return nil, err
		}
		plan = fresh

		if plan.TaskType.RequiresRetrieval() {
			r.state = StateRetrieving
			if err := r.invoke(ctx, blackboard.StageRetriever); err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				r.logger.Warn("retrieval abandoned during rework", zap.Error(err))
			}
		}

	case blackboard.StageRetriever:
		r.state = StateRetrieving
		if err := r.invoke(ctx, blackboard.StageRetriever); err != nil {
			return nil, err
		}
	}

	r.state = StateReasoning
	if err := r.invoke(ctx, blackboard.StageReasoner); err != nil {
		return nil, err
	}
	return plan, nil
}

// terminal assembles the run's result, including a board snapshot for
// inspection and persistence.
func (r *runState) terminal(ctx context.Context, state State, reasoning *blackboard.ReasoningResult, verdict *review.Verdict, warning string) (*Result, error) {
	r.state = state

	snapshot, err := r.board.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot board: %w", err)
	}

	return &Result{
		RunID:          r.req.RunID,
		State:          state,
		Answer:         reasoning.Answer,
		Confidence:     reasoning.Confidence,
		QualityWarning: state == StateExhausted,
		WarningReason:  warning,
		Verdict:        verdict,
		Reasoning:      reasoning,
		Board:          snapshot,
	}, nil
}

func (r *runState) readPlan(ctx context.Context) (*blackboard.Plan, error) {
	raw, err := r.board.Read(ctx, blackboard.NamespacePlan)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan blackboard.Plan
	if err := blackboard.UnmarshalDocument(raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *runState) readRetrieval(ctx context.Context) (*blackboard.RetrievalResult, error) {
	raw, err := r.board.Read(ctx, blackboard.NamespaceRetrieval)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read retrieval document: %w", err)
	}
	var result blackboard.RetrievalResult
	if err := blackboard.UnmarshalDocument(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *runState) readReasoning(ctx context.Context) (*blackboard.ReasoningResult, error) {
	raw, err := r.board.Read(ctx, blackboard.NamespaceReasoning)
	if err != nil {
		return nil, fmt.Errorf("failed to read reasoning document: %w", err)
	}
	var result blackboard.ReasoningResult
	if err := blackboard.UnmarshalDocument(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

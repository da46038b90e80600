// Package review implements the quality gate that runs after reasoning.
// Checks run in a fixed order from cheapest to most expensive, and the
// first failure wins: format, evidence, reasoning completeness, then a
// model-delegated logic/accuracy judgment. Each failed check implicates
// the stage whose rework could fix it.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/pkg/blackboard"
)

// Defect classifies what a failed review found.
type Defect string

const (
	DefectNone         Defect = "none"
	DefectFormat       Defect = "format"
	DefectEvidence     Defect = "evidence"
	DefectCompleteness Defect = "reasoning_completeness"
	DefectLogic        Defect = "logic"
	DefectAccuracy     Defect = "accuracy"
)

// Verdict is the outcome of one review pass.
type Verdict struct {
	Passed          bool
	Defect          Defect
	ImplicatedStage blackboard.Stage // meaningful when !Passed
	Explanation     string
}

// Reviewer assesses a reasoning document against the plan and the gathered
// evidence. It never mutates the board; the orchestrator acts on the verdict.
type Reviewer struct {
	judge  capability.Judge
	logger *zap.Logger
}

// NewReviewer creates a reviewer backed by the given judgment capability.
func NewReviewer(judge capability.Judge, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{judge: judge, logger: logger}
}

// Review runs the check chain. The retrieval document may be nil for
// reasoning-only tasks. An error is returned only when the logic/accuracy
// judgment call itself fails; every deterministic check resolves to a
// verdict.
func (r *Reviewer) Review(ctx context.Context, plan *blackboard.Plan, retrievalDoc *blackboard.RetrievalResult, reasoning *blackboard.ReasoningResult) (Verdict, error) {
	if v := checkFormat(plan.Constraints, reasoning); !v.Passed {
		r.logVerdict(v)
		return v, nil
	}

	if plan.TaskType.RequiresRetrieval() {
		if v := checkEvidence(retrievalDoc, reasoning); !v.Passed {
			r.logVerdict(v)
			return v, nil
		}
	}

	if v := checkCompleteness(plan, reasoning); !v.Passed {
		r.logVerdict(v)
		return v, nil
	}

	assessment, err := r.judge.JudgeAnswer(ctx, plan, reasoning)
	if err != nil {
		return Verdict{}, fmt.Errorf("answer judgment failed: %w", err)
	}

	if !assessment.Sound {
		v := Verdict{
			Defect:          DefectLogic,
			ImplicatedStage: blackboard.StageReasoner,
			Explanation:     assessment.Explanation,
		}
		if assessment.Category == "accuracy" {
			v.Defect = DefectAccuracy
		}
		if assessment.PlanAtFault {
			v.ImplicatedStage = blackboard.StagePlanner
		}
		r.logVerdict(v)
		return v, nil
	}

	return Verdict{Passed: true, Defect: DefectNone}, nil
}

func (r *Reviewer) logVerdict(v Verdict) {
	r.logger.Info("review rejected answer",
		zap.String("defect", string(v.Defect)),
		zap.String("implicated_stage", string(v.ImplicatedStage)),
		zap.String("explanation", v.Explanation))
}

// checkFormat enforces the output constraints the planner extracted from the
// query. Failures are always the reasoner's to fix.
func checkFormat(c blackboard.Constraints, reasoning *blackboard.ReasoningResult) Verdict {
	fail := func(explanation string) Verdict {
		return Verdict{
			Defect:          DefectFormat,
			ImplicatedStage: blackboard.StageReasoner,
			Explanation:     explanation,
		}
	}

	answer := strings.TrimSpace(reasoning.Answer)

	switch c.Format {
	case "number":
		value, err := strconv.ParseFloat(answer, 64)
		if err != nil {
			return fail(fmt.Sprintf("answer %q is not a number", answer))
		}
		if c.Bounds != nil {
			if c.Bounds.Min != nil && value < *c.Bounds.Min {
				return fail(fmt.Sprintf("answer %g is below the lower bound %g", value, *c.Bounds.Min))
			}
			if c.Bounds.Max != nil && value > *c.Bounds.Max {
				return fail(fmt.Sprintf("answer %g exceeds the upper bound %g", value, *c.Bounds.Max))
			}
		}

	case "json":
		if !json.Valid([]byte(answer)) {
			return fail("answer is not valid JSON")
		}
	}

	if len(c.RequiredKeys) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(answer), &obj); err != nil {
			return fail("answer must be a JSON object carrying the required keys")
		}
		for _, key := range c.RequiredKeys {
			if _, ok := obj[key]; !ok {
				return fail(fmt.Sprintf("answer is missing required key %q", key))
			}
		}
	}

	return Verdict{Passed: true}
}

// checkEvidence verifies that every citation points at a gathered result.
// A broken evidence chain implicates the retriever when retrieval itself
// fell short, and the reasoner when the evidence was there to cite.
func checkEvidence(retrievalDoc *blackboard.RetrievalResult, reasoning *blackboard.ReasoningResult) Verdict {
	retrievalFellShort := retrievalDoc == nil || retrievalDoc.Status != blackboard.RetrievalStatusSuccess

	implicated := blackboard.StageReasoner
	if retrievalFellShort {
		implicated = blackboard.StageRetriever
	}

	if len(reasoning.Citations) == 0 {
		return Verdict{
			Defect:          DefectEvidence,
			ImplicatedStage: implicated,
			Explanation:     "answer to a retrieval task cites no evidence",
		}
	}

	for _, url := range reasoning.Citations {
		if retrievalDoc == nil || !retrievalDoc.ContainsURL(url) {
			return Verdict{
				Defect:          DefectEvidence,
				ImplicatedStage: implicated,
				Explanation:     fmt.Sprintf("citation %q does not match any gathered result", url),
			}
		}
	}

	return Verdict{Passed: true}
}

// checkCompleteness verifies the reasoning text engages with every planned
// reasoning step, using normalized token overlap. A step counts as covered
// when at least half of its significant tokens appear in the reasoning.
// Plans express reasoning work either as reasoning_steps or as
// reasoner-owned entries of the step list; both are checked.
func checkCompleteness(plan *blackboard.Plan, reasoning *blackboard.ReasoningResult) Verdict {
	reasoningTokens := make(map[string]bool)
	for _, tok := range tokenize(reasoning.Reasoning + " " + reasoning.Answer) {
		reasoningTokens[tok] = true
	}

	steps := append([]string(nil), plan.ReasoningSteps...)
	for _, s := range plan.Steps {
		if s.Owner == blackboard.StageReasoner {
			steps = append(steps, s.Desc)
		}
	}

	for _, step := range steps {
		stepTokens := significantTokens(step)
		if len(stepTokens) == 0 {
			continue
		}

		covered := 0
		for _, tok := range stepTokens {
			if reasoningTokens[tok] {
				covered++
			}
		}

		if covered*2 < len(stepTokens) {
			return Verdict{
				Defect:          DefectCompleteness,
				ImplicatedStage: blackboard.StageReasoner,
				Explanation:     fmt.Sprintf("reasoning does not address the planned step %q", step),
			}
		}
	}

	return Verdict{Passed: true}
}

// significantTokens drops short function words so coverage matching keys on
// the step's content terms.
func significantTokens(s string) []string {
	var out []string
	for _, tok := range tokenize(s) {
		if len(tok) >= 4 {
			out = append(out, tok)
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

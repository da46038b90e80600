package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelab/troika/internal/capability"
	"github.com/kestrelab/troika/pkg/blackboard"
)

func floatPtr(v float64) *float64 { return &v }

func retrievalPlan() *blackboard.Plan {
	return &blackboard.Plan{
		Query:          "what year was the first moon landing",
		TaskType:       blackboard.TaskTypeRetrieval,
		SearchKeywords: []string{"moon landing year"},
	}
}

func reasoningOnlyPlan() *blackboard.Plan {
	return &blackboard.Plan{
		Query:    "what is 2+2",
		TaskType: blackboard.TaskTypeReasoning,
	}
}

func successfulRetrieval(urls ...string) *blackboard.RetrievalResult {
	results := make([]blackboard.SearchResult, len(urls))
	for i, url := range urls {
		results[i] = blackboard.SearchResult{Title: url, URL: url, Snippet: "snippet"}
	}
	return &blackboard.RetrievalResult{
		Query:   "q",
		Results: results,
		Status:  blackboard.RetrievalStatusSuccess,
		Rounds:  1,
	}
}

func citedReasoning(url string) *blackboard.ReasoningResult {
	return &blackboard.ReasoningResult{
		Answer:       "1969",
		Reasoning:    "Apollo 11 landed on the Moon in July 1969.",
		Citations:    []string{url},
		Confidence:   blackboard.ConfidenceHigh,
		EvidenceUsed: []string{url},
	}
}

func TestReviewPasses(t *testing.T) {
	r := NewReviewer(&capability.StubJudge{}, nil)

	verdict, err := r.Review(context.Background(), retrievalPlan(),
		successfulRetrieval("https://example.org/apollo"),
		citedReasoning("https://example.org/apollo"))
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Equal(t, DefectNone, verdict.Defect)
}

func TestReviewFormat(t *testing.T) {
	r := NewReviewer(&capability.StubJudge{}, nil)

	t.Run("non-numeric answer fails a number constraint", func(t *testing.T) {
		plan := reasoningOnlyPlan()
		plan.Constraints = blackboard.Constraints{Format: "number"}
		reasoning := &blackboard.ReasoningResult{
			Answer:     "four",
			Reasoning:  "two plus two is four",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan, nil, reasoning)
		require.NoError(t, err)

		assert.False(t, verdict.Passed)
		assert.Equal(t, DefectFormat, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
	})

	t.Run("numeric answer outside bounds fails", func(t *testing.T) {
		plan := reasoningOnlyPlan()
		plan.Constraints = blackboard.Constraints{
			Format: "number",
			Bounds: &blackboard.Bounds{Min: floatPtr(0), Max: floatPtr(10)},
		}
		reasoning := &blackboard.ReasoningResult{
			Answer:     "42",
			Reasoning:  "it is forty-two",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan, nil, reasoning)
		require.NoError(t, err)

		assert.Equal(t, DefectFormat, verdict.Defect)
	})

	t.Run("numeric answer within bounds passes", func(t *testing.T) {
		plan := reasoningOnlyPlan()
		plan.Constraints = blackboard.Constraints{
			Format: "number",
			Bounds: &blackboard.Bounds{Min: floatPtr(0), Max: floatPtr(10)},
		}
		reasoning := &blackboard.ReasoningResult{
			Answer:     "4",
			Reasoning:  "two plus two is 4",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan, nil, reasoning)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})

	t.Run("missing required key fails", func(t *testing.T) {
		plan := reasoningOnlyPlan()
		plan.Constraints = blackboard.Constraints{RequiredKeys: []string{"value", "unit"}}
		reasoning := &blackboard.ReasoningResult{
			Answer:     `{"value": 4}`,
			Reasoning:  "computed the value 4",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan, nil, reasoning)
		require.NoError(t, err)

		assert.Equal(t, DefectFormat, verdict.Defect)
		assert.Contains(t, verdict.Explanation, "unit")
	})
}

func TestReviewEvidence(t *testing.T) {
	r := NewReviewer(&capability.StubJudge{}, nil)

	t.Run("citation not in gathered results implicates the reasoner", func(t *testing.T) {
		verdict, err := r.Review(context.Background(), retrievalPlan(),
			successfulRetrieval("https://example.org/apollo"),
			citedReasoning("https://example.org/fabricated"))
		require.NoError(t, err)

		assert.Equal(t, DefectEvidence, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
	})

	t.Run("missing evidence implicates the retriever when retrieval fell short", func(t *testing.T) {
		retrievalDoc := &blackboard.RetrievalResult{
			Query:  "q",
			Status: blackboard.RetrievalStatusNoResults,
			Rounds: 3,
		}

		verdict, err := r.Review(context.Background(), retrievalPlan(), retrievalDoc,
			citedReasoning("https://example.org/apollo"))
		require.NoError(t, err)

		assert.Equal(t, DefectEvidence, verdict.Defect)
		assert.Equal(t, blackboard.StageRetriever, verdict.ImplicatedStage)
	})

	t.Run("uncited answer to a retrieval task fails", func(t *testing.T) {
		reasoning := &blackboard.ReasoningResult{
			Answer:     "1969",
			Reasoning:  "Apollo 11 landed on the Moon in July 1969.",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), retrievalPlan(),
			successfulRetrieval("https://example.org/apollo"), reasoning)
		require.NoError(t, err)

		assert.Equal(t, DefectEvidence, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
	})

	t.Run("reasoning-only tasks skip the evidence check", func(t *testing.T) {
		reasoning := &blackboard.ReasoningResult{
			Answer:     "4",
			Reasoning:  "two plus two is 4",
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), reasoningOnlyPlan(), nil, reasoning)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})
}

func TestReviewCompleteness(t *testing.T) {
	r := NewReviewer(&capability.StubJudge{}, nil)

	plan := retrievalPlan()
	plan.ReasoningSteps = []string{
		"identify the landing year from the evidence",
		"verify against mission records",
	}

	t.Run("reasoning covering every step passes", func(t *testing.T) {
		reasoning := &blackboard.ReasoningResult{
			Answer:     "1969",
			Reasoning:  "The evidence lets us identify the landing year as 1969, and we verify it against mission records.",
			Citations:  []string{"https://example.org/apollo"},
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan,
			successfulRetrieval("https://example.org/apollo"), reasoning)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})

	t.Run("reasoning skipping a step fails", func(t *testing.T) {
		reasoning := &blackboard.ReasoningResult{
			Answer:     "1969",
			Reasoning:  "The evidence lets us identify the landing year as 1969.",
			Citations:  []string{"https://example.org/apollo"},
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan,
			successfulRetrieval("https://example.org/apollo"), reasoning)
		require.NoError(t, err)

		assert.Equal(t, DefectCompleteness, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
		assert.Contains(t, verdict.Explanation, "mission records")
	})

	t.Run("unaddressed reasoner-owned plan step fails", func(t *testing.T) {
		plan := retrievalPlan()
		plan.Steps = []blackboard.PlanStep{
			{ID: "step_1", Owner: blackboard.StageReasoner, Desc: "convert celsius temperature fahrenheit formula"},
		}
		reasoning := &blackboard.ReasoningResult{
			Answer:     "1969",
			Reasoning:  "looked it up directly",
			Citations:  []string{"https://example.org/apollo"},
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan,
			successfulRetrieval("https://example.org/apollo"), reasoning)
		require.NoError(t, err)

		assert.Equal(t, DefectCompleteness, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
		assert.Contains(t, verdict.Explanation, "celsius")
	})

	t.Run("covered reasoner-owned steps pass, retriever-owned steps are not checked", func(t *testing.T) {
		plan := retrievalPlan()
		plan.Steps = []blackboard.PlanStep{
			{ID: "step_1", Owner: blackboard.StageRetriever, Desc: "gather primary mission transcripts"},
			{ID: "step_2", Owner: blackboard.StageReasoner, Desc: "identify the landing year from the evidence"},
		}
		reasoning := &blackboard.ReasoningResult{
			Answer:     "1969",
			Reasoning:  "The evidence lets us identify the landing year as 1969.",
			Citations:  []string{"https://example.org/apollo"},
			Confidence: blackboard.ConfidenceHigh,
		}

		verdict, err := r.Review(context.Background(), plan,
			successfulRetrieval("https://example.org/apollo"), reasoning)
		require.NoError(t, err)
		assert.True(t, verdict.Passed)
	})
}

func TestReviewAnswerJudgment(t *testing.T) {
	t.Run("unsound logic implicates the reasoner", func(t *testing.T) {
		judge := &capability.StubJudge{
			Assessments: []capability.Assessment{
				{Sound: false, Category: "logic", Explanation: "conclusion does not follow"},
			},
		}
		r := NewReviewer(judge, nil)

		verdict, err := r.Review(context.Background(), reasoningOnlyPlan(), nil,
			&blackboard.ReasoningResult{Answer: "4", Reasoning: "because", Confidence: blackboard.ConfidenceLow})
		require.NoError(t, err)

		assert.Equal(t, DefectLogic, verdict.Defect)
		assert.Equal(t, blackboard.StageReasoner, verdict.ImplicatedStage)
	})

	t.Run("accuracy fault traced to the plan implicates the planner", func(t *testing.T) {
		judge := &capability.StubJudge{
			Assessments: []capability.Assessment{
				{Sound: false, Category: "accuracy", PlanAtFault: true, Explanation: "plan misread the question"},
			},
		}
		r := NewReviewer(judge, nil)

		verdict, err := r.Review(context.Background(), reasoningOnlyPlan(), nil,
			&blackboard.ReasoningResult{Answer: "4", Reasoning: "because", Confidence: blackboard.ConfidenceLow})
		require.NoError(t, err)

		assert.Equal(t, DefectAccuracy, verdict.Defect)
		assert.Equal(t, blackboard.StagePlanner, verdict.ImplicatedStage)
	})

	t.Run("judgment failure surfaces as an error", func(t *testing.T) {
		judge := &capability.StubJudge{AssessmentErr: errors.New("model unavailable")}
		r := NewReviewer(judge, nil)

		_, err := r.Review(context.Background(), reasoningOnlyPlan(), nil,
			&blackboard.ReasoningResult{Answer: "4", Reasoning: "because", Confidence: blackboard.ConfidenceLow})
		assert.Error(t, err)
	})

	t.Run("deterministic checks run before the judgment call", func(t *testing.T) {
		judge := &capability.StubJudge{AssessmentErr: errors.New("model unavailable")}
		r := NewReviewer(judge, nil)

		plan := reasoningOnlyPlan()
		plan.Constraints = blackboard.Constraints{Format: "number"}

		verdict, err := r.Review(context.Background(), plan, nil,
			&blackboard.ReasoningResult{Answer: "four", Reasoning: "because", Confidence: blackboard.ConfidenceLow})
		require.NoError(t, err, "format defect resolves without reaching the judge")
		assert.Equal(t, DefectFormat, verdict.Defect)
		assert.Equal(t, 0, judge.AnswerCalls)
	})
}

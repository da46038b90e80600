package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/kestrelab/troika/pkg/blackboard"
)

// Deterministic stand-ins for the external capabilities. The orchestration
// core (state machine, retry budgets, round accumulation) is tested entirely
// against these - no live model or network call is ever required.

// StubGenerator replays scripted documents per stage, in order. When a
// stage's script is exhausted its last entry repeats, so retry tests can
// script one failure followed by a success.
type StubGenerator struct {
	mu        sync.Mutex
	Responses map[blackboard.Stage][]StubResponse
	Calls     []blackboard.Stage
	cursor    map[blackboard.Stage]int
}

// StubResponse is one scripted generation outcome.
type StubResponse struct {
	Doc blackboard.Document
	Err error
}

// Generate returns the next scripted response for the request's stage.
func (g *StubGenerator) Generate(_ context.Context, req GenerateRequest) (blackboard.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls = append(g.Calls, req.Stage)

	script := g.Responses[req.Stage]
	if len(script) == 0 {
		return nil, &GenerationError{Stage: req.Stage, Err: fmt.Errorf("no scripted response")}
	}

	if g.cursor == nil {
		g.cursor = make(map[blackboard.Stage]int)
	}
	idx := g.cursor[req.Stage]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	g.cursor[req.Stage]++

	resp := script[idx]
	return resp.Doc, resp.Err
}

// CallCount returns how many times the given stage was invoked.
func (g *StubGenerator) CallCount(stage blackboard.Stage) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, s := range g.Calls {
		if s == stage {
			count++
		}
	}
	return count
}

// StubRound is one scripted search outcome.
type StubRound struct {
	Results []blackboard.SearchResult
	Err     error
}

// StubSearcher replays scripted rounds in call order. Calls beyond the
// script return no results.
type StubSearcher struct {
	mu         sync.Mutex
	Rounds     []StubRound
	Calls      int
	KeywordLog [][]string
}

// Search returns the scripted round for this call index.
func (s *StubSearcher) Search(_ context.Context, keywords []string, _ int) ([]blackboard.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.KeywordLog = append(s.KeywordLog, keywords)
	idx := s.Calls
	s.Calls++

	if idx >= len(s.Rounds) {
		return nil, nil
	}
	round := s.Rounds[idx]
	return round.Results, round.Err
}

// StubJudge scripts every judgment call. Zero value: nothing is sufficient,
// no new keywords are proposed, and every answer is judged sound.
type StubJudge struct {
	mu sync.Mutex

	// Sufficient is consumed per sufficiency call; past the end, false.
	Sufficient []bool

	// Proposals is consumed per keyword-proposal call; past the end, nil.
	Proposals [][]string

	// Assessments is consumed per answer judgment; past the end (or when
	// empty), the answer is judged sound.
	Assessments []Assessment

	// AssessmentErr, when set, fails every answer judgment call.
	AssessmentErr error

	SufficiencyCalls int
	ProposalCalls    int
	AnswerCalls      int
}

// JudgeSufficiency returns the next scripted sufficiency verdict.
func (j *StubJudge) JudgeSufficiency(_ context.Context, _ string, _ []blackboard.SearchResult) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	idx := j.SufficiencyCalls
	j.SufficiencyCalls++

	if idx < len(j.Sufficient) {
		return j.Sufficient[idx], nil
	}
	return false, nil
}

// ProposeKeywords returns the next scripted keyword set.
func (j *StubJudge) ProposeKeywords(_ context.Context, _ string, _ *blackboard.RetrievalResult) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	idx := j.ProposalCalls
	j.ProposalCalls++

	if idx < len(j.Proposals) {
		return j.Proposals[idx], nil
	}
	return nil, nil
}

// JudgeAnswer returns the next scripted assessment, defaulting to sound.
func (j *StubJudge) JudgeAnswer(_ context.Context, _ *blackboard.Plan, _ *blackboard.ReasoningResult) (Assessment, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	idx := j.AnswerCalls
	j.AnswerCalls++

	if j.AssessmentErr != nil {
		return Assessment{}, j.AssessmentErr
	}
	if idx < len(j.Assessments) {
		return j.Assessments[idx], nil
	}
	return Assessment{Sound: true}, nil
}

// Interface checks.
var (
	_ Generator = (*StubGenerator)(nil)
	_ Searcher  = (*StubSearcher)(nil)
	_ Judge     = (*StubJudge)(nil)
	_ Generator = (*Gemini)(nil)
	_ Judge     = (*Gemini)(nil)
	_ Searcher  = (*DuckDuckGo)(nil)
)

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kestrelab/troika/pkg/blackboard"
)

// Gemini implements Generator and Judge against Google's Gemini API.
// All calls request JSON responses; the raw text is returned as the
// candidate document without interpretation beyond trimming code fences.
type Gemini struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
}

// NewGemini creates a Gemini-backed capability set.
// maxOutputTokens <= 0 leaves the model default in place.
func NewGemini(ctx context.Context, apiKey, model string, maxOutputTokens int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:          client,
		model:           model,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

// Generate produces a candidate document for the given stage.
func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (blackboard.Document, error) {
	prompt, err := buildStagePrompt(req)
	if err != nil {
		return nil, &GenerationError{Stage: req.Stage, Err: err}
	}

	raw, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return nil, &GenerationError{Stage: req.Stage, Err: err}
	}

	return blackboard.Document(raw), nil
}

// JudgeSufficiency asks the model whether the results address the query.
// An empty result set is insufficient by definition; no call is made.
func (g *Gemini) JudgeSufficiency(ctx context.Context, query string, results []blackboard.SearchResult) (bool, error) {
	if len(results) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString("You judge whether web search results contain enough information to answer a question.\n")
	sb.WriteString("Respond with JSON: {\"sufficient\": true|false}.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\nResults:\n", query)
	writeResults(&sb, results)

	raw, err := g.generateJSON(ctx, sb.String())
	if err != nil {
		return false, fmt.Errorf("sufficiency judgment failed: %w", err)
	}

	var verdict struct {
		Sufficient bool `json:"sufficient"`
	}
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return false, fmt.Errorf("sufficiency judgment returned malformed JSON: %w", err)
	}

	return verdict.Sufficient, nil
}

// ProposeKeywords derives a fresh keyword set from the rounds so far.
func (g *Gemini) ProposeKeywords(ctx context.Context, query string, prior *blackboard.RetrievalResult) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("Previous web searches did not find enough information. Propose a better keyword set:\n")
	sb.WriteString("broaden or narrow the terms, try English keywords, split compound questions, or add time or place qualifiers.\n")
	sb.WriteString("Respond with JSON: {\"keywords\": [\"...\"]}.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", query)
	if prior != nil {
		fmt.Fprintf(&sb, "Keywords already tried: %s\n", strings.Join(prior.SearchKeywords, ", "))
		fmt.Fprintf(&sb, "Rounds so far: %d, last status: %s, results found: %d\n",
			prior.Rounds, prior.Status, len(prior.Results))
	}

	raw, err := g.generateJSON(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("keyword proposal failed: %w", err)
	}

	var proposal struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return nil, fmt.Errorf("keyword proposal returned malformed JSON: %w", err)
	}

	return proposal.Keywords, nil
}

// JudgeAnswer assesses logical consistency and accuracy of the final answer.
func (g *Gemini) JudgeAnswer(ctx context.Context, plan *blackboard.Plan, reasoning *blackboard.ReasoningResult) (Assessment, error) {
	var sb strings.Builder
	sb.WriteString("You review an answer for logical consistency with its reasoning and accuracy against the question.\n")
	sb.WriteString("Respond with JSON: {\"sound\": true|false, \"category\": \"logic\"|\"accuracy\", \"plan_at_fault\": true|false, \"explanation\": \"...\"}.\n")
	sb.WriteString("Set plan_at_fault only when the mismatch clearly traces back to a malformed plan rather than the reasoning itself.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", plan.Query)
	fmt.Fprintf(&sb, "Answer: %s\n", reasoning.Answer)
	fmt.Fprintf(&sb, "Reasoning: %s\n", reasoning.Reasoning)

	raw, err := g.generateJSON(ctx, sb.String())
	if err != nil {
		return Assessment{}, fmt.Errorf("answer judgment failed: %w", err)
	}

	var out struct {
		Sound       bool   `json:"sound"`
		Category    string `json:"category"`
		PlanAtFault bool   `json:"plan_at_fault"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Assessment{}, fmt.Errorf("answer judgment returned malformed JSON: %w", err)
	}

	return Assessment{
		Sound:       out.Sound,
		Category:    out.Category,
		PlanAtFault: out.PlanAtFault,
		Explanation: out.Explanation,
	}, nil
}

// generateJSON runs one JSON-mode generation call and returns the raw text.
func (g *Gemini) generateJSON(ctx context.Context, prompt string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if g.maxOutputTokens > 0 {
		config.MaxOutputTokens = g.maxOutputTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}

	return []byte(stripCodeFence(text)), nil
}

// buildStagePrompt assembles the prompt context for a planner or reasoner
// generation. The retriever never reaches a Generator - it goes through the
// retrieval controller.
func buildStagePrompt(req GenerateRequest) (string, error) {
	switch req.Stage {
	case blackboard.StagePlanner:
		return buildPlannerPrompt(req), nil
	case blackboard.StageReasoner:
		return buildReasonerPrompt(req)
	default:
		return "", fmt.Errorf("stage %q has no generation prompt", req.Stage)
	}
}

func buildPlannerPrompt(req GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString("You analyse a question and produce a solution plan.\n")
	sb.WriteString("Classify the task: \"retrieval\" needs web information, \"reasoning\" needs only logic or calculation, \"hybrid\" needs both.\n")
	sb.WriteString("Respond with JSON only, shaped as:\n")
	sb.WriteString(`{"query": "normalised question", "attachments": [], "task_type": "retrieval|reasoning|hybrid", "search_keywords": [], "reasoning_steps": [], "steps": [{"id": "step_1", "owner": "retriever|reasoner", "desc": "..."}], "constraints": {"format": "", "required_keys": [], "bounds": null}, "reasoning_hints": []}`)
	sb.WriteString("\n\nKeep search keywords short and precise. Capture any output-format constraints the question states (for example \"answer with a number only\").\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", req.Query)
	for _, summary := range req.Attachments {
		fmt.Fprintf(&sb, "Attachment: %s\n", summary)
	}
	return sb.String()
}

func buildReasonerPrompt(req GenerateRequest) (string, error) {
	if req.Plan == nil {
		return "", fmt.Errorf("reasoner prompt requires a plan")
	}

	planJSON, err := json.Marshal(req.Plan)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan for prompt: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You derive the final answer from the plan and the retrieved evidence.\n")
	sb.WriteString("Follow the plan's reasoning steps. Cite evidence URLs you actually used. Lower confidence when evidence is thin.\n")
	sb.WriteString("Respond with JSON only, shaped as:\n")
	sb.WriteString(`{"answer": "...", "reasoning": "...", "citations": ["url"], "confidence": "high|medium|low", "evidence_used": ["..."]}`)
	sb.WriteString("\nThe answer must honour the plan's constraints exactly.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\nPlan:\n%s\n", req.Query, planJSON)

	if req.Retrieval != nil {
		fmt.Fprintf(&sb, "\nRetrieved evidence (status %s, %d rounds):\n", req.Retrieval.Status, req.Retrieval.Rounds)
		writeResults(&sb, req.Retrieval.Results)
	} else {
		sb.WriteString("\nNo retrieval was performed for this task.\n")
	}

	return sb.String(), nil
}

func writeResults(sb *strings.Builder, results []blackboard.SearchResult) {
	for i, r := range results {
		fmt.Fprintf(sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
}

// stripCodeFence removes a surrounding markdown code fence if the model
// ignored JSON mode and wrapped its output anyway.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

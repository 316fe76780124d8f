package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvannoy/scrip/internal/llm"
)

var researchDepths = map[string]int{
	"quick":         3,
	"standard":      5,
	"comprehensive": 8,
}

type researchRequest struct {
	UserID           string `json:"userId"`
	Topic            string `json:"topic"`
	Depth            string `json:"depth,omitempty"`
	IncludeFactCheck *bool  `json:"includeFactCheck,omitempty"`
}

func (r *researchRequest) includeFactCheck() bool {
	return r.IncludeFactCheck == nil || *r.IncludeFactCheck
}

// ResearchEngine runs a bounded tool-calling research workflow: web search,
// fact extraction, optional claim verification, and report generation.
// Buffered only, and the most expensive agent.
type ResearchEngine struct {
	provider LLM
}

// NewResearchEngine creates the research-engine agent.
func NewResearchEngine(provider LLM) *ResearchEngine {
	return &ResearchEngine{provider: provider}
}

func (a *ResearchEngine) ID() string { return ResearchID }

func (a *ResearchEngine) Cost() int { return ResearchCost }

// Prepare validates the request body and builds the invocation.
func (a *ResearchEngine) Prepare(body []byte) (*Invocation, error) {
	var req researchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidf("invalid request body: %v", err)
	}

	if req.UserID == "" {
		return nil, invalidf("userId is required")
	}
	if len(req.Topic) < 3 {
		return nil, invalidf("topic must be at least 3 characters")
	}
	if req.Depth == "" {
		req.Depth = "standard"
	}
	if _, ok := researchDepths[req.Depth]; !ok {
		return nil, invalidf("depth must be one of quick, standard, comprehensive")
	}

	return &Invocation{
		AgentID: a.ID(),
		UserID:  req.UserID,
		Cost:    a.Cost(),
		InputSummary: map[string]any{
			"topic": req.Topic,
			"depth": req.Depth,
		},
		Invoke: func(ctx context.Context, _ Sink) (*Result, error) {
			return a.run(ctx, req)
		},
	}, nil
}

func (a *ResearchEngine) tools() *toolset {
	return &toolset{
		defs: []llm.Tool{searchWebDef, extractFactsDef, verifyClaimDef, generateReportDef},
		funcs: map[string]toolFunc{
			"searchWeb":      searchWeb,
			"extractFacts":   extractFactsTool(a.provider),
			"verifyClaim":    verifyClaim,
			"generateReport": generateReport,
		},
	}
}

func (a *ResearchEngine) run(ctx context.Context, req researchRequest) (*Result, error) {
	verifyInstruction := ""
	if req.includeFactCheck() {
		verifyInstruction = "\n3. Use verifyClaim to verify important claims"
	}

	prompt := fmt.Sprintf(`You are a research assistant. Research the topic: %q

Instructions:
1. Use searchWeb to find relevant information
2. Use extractFacts to pull key data points%s
4. Use generateReport to create a comprehensive report

Be thorough and cite all sources. Depth level: %s`, req.Topic, verifyInstruction, req.Depth)

	maxSteps := researchDepths[req.Depth]
	loop, err := runToolLoop(ctx, a.provider, a.tools(),
		[]llm.Message{{Role: "user", Content: prompt}}, maxSteps, nil)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"topic":  req.Topic,
			"report": loop.Text,
			"metadata": map[string]any{
				"stepsExecuted": len(loop.Steps),
				"toolCallsMade": loop.ToolCallsMade,
				"depth":         req.Depth,
				"reasoning":     loop.Steps,
			},
			"cost": a.Cost(),
		},
		Output: map[string]any{
			"stepsExecuted": len(loop.Steps),
			"toolsUsed":     loop.ToolCallsMade,
			"tokenCount":    llm.CountTokens(loop.Text),
		},
	}, nil
}

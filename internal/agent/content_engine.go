package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rvannoy/scrip/internal/llm"
)

var (
	engineFormats = []string{"blog", "social", "documentation", "email", "landing-page"}
	engineTones   = []string{"professional", "casual", "technical", "friendly", "persuasive"}
)

type engineOptions struct {
	SEOOptimize     *bool `json:"seoOptimize,omitempty"`
	FactCheck       bool  `json:"factCheck,omitempty"`
	IncludeImages   bool  `json:"includeImages,omitempty"`
	TargetWordCount int   `json:"targetWordCount,omitempty"`
}

type engineRequest struct {
	UserID  string         `json:"userId"`
	Content string         `json:"content"`
	Format  string         `json:"format"`
	Tone    string         `json:"tone"`
	Options *engineOptions `json:"options,omitempty"`
}

func (r *engineRequest) seoOptimize() bool {
	if r.Options == nil || r.Options.SEOOptimize == nil {
		return true
	}
	return *r.Options.SEOOptimize
}

func (r *engineRequest) factCheck() bool {
	return r.Options != nil && r.Options.FactCheck
}

func (r *engineRequest) targetWordCount() int {
	if r.Options == nil {
		return 0
	}
	return r.Options.TargetWordCount
}

// contentAnalysis is the structured output of the analysis step.
type contentAnalysis struct {
	Sentiment             string   `json:"sentiment"`
	ReadingLevel          float64  `json:"readingLevel"`
	KeyTopics             []string `json:"keyTopics"`
	SuggestedImprovements []string `json:"suggestedImprovements"`
}

// seoMetadata is the structured output of the SEO step.
type seoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Slug        string   `json:"slug"`
}

type factualClaim struct {
	Claim             string `json:"claim"`
	Confidence        string `json:"confidence"`
	NeedsVerification bool   `json:"needsVerification"`
}

// ContentEngine runs the full multi-step pipeline: analysis, outline, draft,
// refinement, and optional SEO and fact-check passes. Buffered only.
type ContentEngine struct {
	provider LLM
}

// NewContentEngine creates the content-engine agent.
func NewContentEngine(provider LLM) *ContentEngine {
	return &ContentEngine{provider: provider}
}

func (a *ContentEngine) ID() string { return ContentEngineID }

func (a *ContentEngine) Cost() int { return ContentEngineCost }

// Prepare validates the request body and builds the invocation.
func (a *ContentEngine) Prepare(body []byte) (*Invocation, error) {
	var req engineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidf("invalid request body: %v", err)
	}

	if req.UserID == "" {
		return nil, invalidf("userId is required")
	}
	if len(req.Content) < 50 {
		return nil, invalidf("content must be at least 50 characters")
	}
	if !contains(engineFormats, req.Format) {
		return nil, invalidf("format must be one of %s", strings.Join(engineFormats, ", "))
	}
	if !contains(engineTones, req.Tone) {
		return nil, invalidf("tone must be one of %s", strings.Join(engineTones, ", "))
	}
	if req.targetWordCount() < 0 {
		return nil, invalidf("targetWordCount must be non-negative")
	}

	return &Invocation{
		AgentID: a.ID(),
		UserID:  req.UserID,
		Cost:    a.Cost(),
		InputSummary: map[string]any{
			"format":        req.Format,
			"tone":          req.Tone,
			"contentLength": len(req.Content),
		},
		Invoke: func(ctx context.Context, _ Sink) (*Result, error) {
			return a.run(ctx, req)
		},
	}, nil
}

func (a *ContentEngine) run(ctx context.Context, req engineRequest) (*Result, error) {
	analysis, err := a.analyze(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("analysis step: %w", err)
	}

	outline, err := a.outline(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("outline step: %w", err)
	}

	content, err := a.generate(ctx, req, analysis, outline)
	if err != nil {
		return nil, fmt.Errorf("generation step: %w", err)
	}

	var seo *seoMetadata
	if req.seoOptimize() {
		seo, err = a.seoMetadata(ctx, content, req.Format)
		if err != nil {
			return nil, fmt.Errorf("seo step: %w", err)
		}
	}

	var factCheck map[string]any
	if req.factCheck() {
		factCheck, err = a.factCheck(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("fact-check step: %w", err)
		}
	}

	wordCount := len(strings.Fields(content))
	payload := map[string]any{
		"content":  content,
		"analysis": analysis,
		"outline":  outline,
		"metadata": map[string]any{
			"wordCount":      wordCount,
			"readingTime":    readingTime(wordCount),
			"characterCount": len(content),
		},
	}
	if seo != nil {
		payload["seo"] = seo
	}
	if factCheck != nil {
		payload["factCheck"] = factCheck
	}

	return &Result{Payload: payload, Output: textSummary(content)}, nil
}

func (a *ContentEngine) analyze(ctx context.Context, content string) (*contentAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze this content and provide insights:

%s

Respond with a JSON object containing:
- "sentiment": "positive", "neutral" or "negative"
- "readingLevel": Flesch-Kincaid grade (1-20)
- "keyTopics": up to 5 key topics
- "suggestedImprovements": top 3 improvement suggestions`, content)

	analysis := &contentAnalysis{}
	err := a.provider.CompleteJSON(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}, analysis)
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (a *ContentEngine) outline(ctx context.Context, req engineRequest) ([]string, error) {
	prompt := fmt.Sprintf(`Create a structured outline for %s content with %s tone.

Original content:
%s

Respond with a JSON object {"outline": [...]} containing 3-8 clear section headers.`,
		req.Format, req.Tone, req.Content)

	var out struct {
		Outline []string `json:"outline"`
	}
	err := a.provider.CompleteJSON(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Outline) == 0 {
		return nil, fmt.Errorf("provider returned an empty outline")
	}
	return out.Outline, nil
}

func (a *ContentEngine) generate(ctx context.Context, req engineRequest, analysis *contentAnalysis, outline []string) (string, error) {
	var numbered strings.Builder
	for i, item := range outline {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, item)
	}

	var extra string
	if target := req.targetWordCount(); target > 0 {
		extra = fmt.Sprintf("\n- Target approximately %d words", target)
	}

	draftPrompt := fmt.Sprintf(`Transform this content into a %s piece with %s tone.

ORIGINAL CONTENT:
%s

OUTLINE TO FOLLOW:
%s
ANALYSIS INSIGHTS:
- Sentiment: %s
- Key Topics: %s
- Improvements needed: %s

Requirements:
- Follow the outline structure
- Maintain %s tone throughout
- Address the improvement suggestions
- Make it engaging and actionable%s
- Use clear, concise language
- Include transitions between sections`,
		req.Format, req.Tone, req.Content, numbered.String(),
		analysis.Sentiment, strings.Join(analysis.KeyTopics, ", "),
		strings.Join(analysis.SuggestedImprovements, ", "), req.Tone, extra)

	maxTokens := 2000
	if target := req.targetWordCount(); target > 0 {
		maxTokens = target * 3 / 2
	}

	draft, err := a.provider.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: draftPrompt}},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	refinePrompt := fmt.Sprintf(`Refine and polish this %s content. Fix any issues, improve flow, and ensure professional quality.

DRAFT:
%s

Make it publication-ready. Fix grammar, improve transitions, enhance clarity.`,
		req.Format, draft.Content)

	refined, err := a.provider.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: refinePrompt}},
		Temperature: 0.3,
		MaxTokens:   1500,
	})
	if err != nil {
		return "", err
	}
	return refined.Content, nil
}

func (a *ContentEngine) seoMetadata(ctx context.Context, content, format string) (*seoMetadata, error) {
	excerpt := content
	if len(excerpt) > 1000 {
		excerpt = excerpt[:1000]
	}

	prompt := fmt.Sprintf(`Generate SEO metadata for this %s content:

%s

Respond with a JSON object:
- "title": compelling, under 60 chars, includes primary keyword
- "description": engaging, under 160 chars, includes call-to-action
- "keywords": 5-10 relevant keywords/phrases
- "slug": URL-friendly, lowercase, hyphens only`, format, excerpt)

	seo := &seoMetadata{}
	err := a.provider.CompleteJSON(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}, seo)
	if err != nil {
		return nil, err
	}
	return seo, nil
}

func (a *ContentEngine) factCheck(ctx context.Context, content string) (map[string]any, error) {
	prompt := fmt.Sprintf(`Extract factual claims from this content that should be verified:

%s

Identify specific factual statements, not opinions. Respond with a JSON object
{"factualClaims": [{"claim": ..., "confidence": "high"|"medium"|"low", "needsVerification": bool}]}.`, content)

	var out struct {
		FactualClaims []factualClaim `json:"factualClaims"`
	}
	err := a.provider.CompleteJSON(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	}, &out)
	if err != nil {
		return nil, err
	}

	needsVerification := 0
	for _, c := range out.FactualClaims {
		if c.NeedsVerification {
			needsVerification++
		}
	}
	// Claims are extracted but not yet checked against external sources.
	return map[string]any{
		"totalClaims":       len(out.FactualClaims),
		"needsVerification": needsVerification,
		"claims":            out.FactualClaims,
		"verified":          false,
	}, nil
}

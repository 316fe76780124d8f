package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rvannoy/scrip/internal/llm"
)

var wizardSystemPrompts = map[string]string{
	"blog": `You are an expert blog writer. Transform the provided notes into a well-structured, engaging blog post with:
- Compelling headline
- Clear introduction
- Well-organized body with subheadings
- Strong conclusion
- SEO-friendly content`,

	"social": `You are a social media expert. Transform the content into engaging social media posts optimized for:
- Platform-specific best practices
- Attention-grabbing hooks
- Clear call-to-action
- Optimal length for engagement`,

	"documentation": `You are a technical writer. Transform the content into clear, comprehensive documentation with:
- Logical structure and hierarchy
- Code examples where relevant
- Step-by-step instructions
- Clear explanations of technical concepts`,

	"email": `You are a professional email writer. Transform the content into a well-crafted email with:
- Clear subject line
- Professional greeting
- Concise and purposeful body
- Appropriate closing
- Professional tone`,
}

var (
	wizardFormats = []string{"blog", "social", "documentation", "email"}
	wizardTones   = []string{"professional", "casual", "technical", "friendly"}
	wizardLengths = []string{"short", "medium", "long"}
)

type wizardRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
	Format  string `json:"format"`
	Tone    string `json:"tone,omitempty"`
	Length  string `json:"length,omitempty"`
	Stream  bool   `json:"stream,omitempty"`
}

// ContentWizard is the single-shot content transformer. It is the only
// content agent that supports streaming.
type ContentWizard struct {
	provider LLM
}

// NewContentWizard creates the content-wizard agent.
func NewContentWizard(provider LLM) *ContentWizard {
	return &ContentWizard{provider: provider}
}

func (a *ContentWizard) ID() string { return ContentWizardID }

func (a *ContentWizard) Cost() int { return ContentWizardCost }

// Prepare validates the request body and builds the invocation.
func (a *ContentWizard) Prepare(body []byte) (*Invocation, error) {
	var req wizardRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidf("invalid request body: %v", err)
	}

	if req.UserID == "" {
		return nil, invalidf("userId is required")
	}
	if len(req.Content) < 10 {
		return nil, invalidf("content must be at least 10 characters")
	}
	if !contains(wizardFormats, req.Format) {
		return nil, invalidf("format must be one of %s", strings.Join(wizardFormats, ", "))
	}
	if req.Tone != "" && !contains(wizardTones, req.Tone) {
		return nil, invalidf("tone must be one of %s", strings.Join(wizardTones, ", "))
	}
	if req.Length != "" && !contains(wizardLengths, req.Length) {
		return nil, invalidf("length must be one of %s", strings.Join(wizardLengths, ", "))
	}

	return &Invocation{
		AgentID: a.ID(),
		UserID:  req.UserID,
		Cost:    a.Cost(),
		Stream:  req.Stream,
		InputSummary: map[string]any{
			"format":        req.Format,
			"tone":          req.Tone,
			"length":        req.Length,
			"contentLength": len(req.Content),
		},
		Invoke: func(ctx context.Context, sink Sink) (*Result, error) {
			return a.run(ctx, req, sink)
		},
	}, nil
}

func (a *ContentWizard) prompt(req wizardRequest) string {
	var b strings.Builder
	b.WriteString(wizardSystemPrompts[req.Format])
	if req.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s", req.Tone)
	}
	if req.Length != "" {
		fmt.Fprintf(&b, "\nLength: %s", req.Length)
	}
	fmt.Fprintf(&b, "\n\nSource Content:\n%s\n\nGenerate the %s now:", req.Content, req.Format)
	return b.String()
}

func (a *ContentWizard) run(ctx context.Context, req wizardRequest, sink Sink) (*Result, error) {
	llmReq := llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: a.prompt(req)}},
		Temperature: 0.7,
		MaxTokens:   2000,
	}

	if req.Stream {
		comp, err := a.provider.Stream(ctx, llmReq, sink.Chunk)
		if err != nil {
			return nil, err
		}
		return &Result{Output: textSummary(comp.Content)}, nil
	}

	comp, err := a.provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, err
	}

	title, content := splitTitle(comp.Content)
	wordCount := len(strings.Fields(content))
	return &Result{
		Payload: map[string]any{
			"result": map[string]any{
				"title":   title,
				"content": content,
				"metadata": map[string]any{
					"wordCount":         wordCount,
					"estimatedReadTime": readingTime(wordCount),
				},
			},
		},
		Output: textSummary(content),
	}, nil
}

// splitTitle treats the first line as the title, stripping a markdown
// heading marker if present.
func splitTitle(text string) (title, content string) {
	lines := strings.Split(text, "\n")
	title = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "#"))
	content = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return title, content
}

// readingTime estimates minutes to read at 200 words per minute, rounded up.
func readingTime(wordCount int) int {
	return (wordCount + 199) / 200
}

// textSummary builds the bounded output summary stored on the execution
// record: counts only, never the generated artifact itself.
func textSummary(text string) map[string]any {
	wordCount := len(strings.Fields(text))
	return map[string]any{
		"wordCount":   wordCount,
		"tokenCount":  llm.CountTokens(text),
		"readingTime": readingTime(wordCount),
	}
}

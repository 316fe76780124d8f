package agent

import (
	"context"
	"encoding/json"

	"github.com/rvannoy/scrip/internal/llm"
)

const chatMaxSteps = 5

const chatSystemPrompt = `You are a helpful AI assistant with access to tools.

When users ask questions:
- Use searchWeb to find current information
- Use analyzeCode when they share code snippets
- Use calculateMath for mathematical problems
- Use getDateTime for time-related queries

Be concise, professional, and accurate. Show your reasoning process.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	UserID   string        `json:"userId"`
	Messages []chatMessage `json:"messages"`
}

// Chat is the streaming conversational agent with a bounded tool budget.
type Chat struct {
	provider LLM
}

// NewChat creates the streaming-chat agent.
func NewChat(provider LLM) *Chat {
	return &Chat{provider: provider}
}

func (a *Chat) ID() string { return ChatID }

func (a *Chat) Cost() int { return ChatCost }

// Prepare validates the request body and builds the invocation. Chat is
// always streamed.
func (a *Chat) Prepare(body []byte) (*Invocation, error) {
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidf("invalid request body: %v", err)
	}

	if req.UserID == "" {
		return nil, invalidf("userId is required")
	}
	if len(req.Messages) == 0 {
		return nil, invalidf("messages array is required")
	}
	for i, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, invalidf("messages[%d].role must be user or assistant", i)
		}
		if m.Content == "" {
			return nil, invalidf("messages[%d].content is required", i)
		}
	}

	last := req.Messages[len(req.Messages)-1].Content
	if len(last) > 100 {
		last = last[:100]
	}

	return &Invocation{
		AgentID: a.ID(),
		UserID:  req.UserID,
		Cost:    a.Cost(),
		Stream:  true,
		InputSummary: map[string]any{
			"messageCount": len(req.Messages),
			"lastMessage":  last,
		},
		Invoke: func(ctx context.Context, sink Sink) (*Result, error) {
			return a.run(ctx, req, sink)
		},
	}, nil
}

func (a *Chat) tools() *toolset {
	return &toolset{
		defs: []llm.Tool{searchWebDef, analyzeCodeDef, calculateMathDef, getDateTimeDef},
		funcs: map[string]toolFunc{
			"searchWeb":     searchWeb,
			"analyzeCode":   analyzeCode,
			"calculateMath": calculateMath,
			"getDateTime":   getDateTime,
		},
	}
}

func (a *Chat) run(ctx context.Context, req chatRequest, sink Sink) (*Result, error) {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: chatSystemPrompt})
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	loop, err := runToolLoop(ctx, a.provider, a.tools(), messages, chatMaxSteps, sink)
	if err != nil {
		return nil, err
	}

	return &Result{
		Output: map[string]any{
			"stepsExecuted": len(loop.Steps),
			"toolCallsMade": loop.ToolCallsMade,
			"finishReason":  loop.FinishReason,
			"tokenCount":    llm.CountTokens(loop.Text),
		},
	}, nil
}

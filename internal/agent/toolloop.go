package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rvannoy/scrip/internal/llm"
)

// loopStep records one round of the tool-calling loop for the reasoning
// trace returned to clients.
type loopStep struct {
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	ToolCalls []string `json:"toolCalls,omitempty"`
}

// loopResult is the outcome of a bounded tool-calling conversation.
type loopResult struct {
	Text          string
	Steps         []loopStep
	ToolCallsMade int
	FinishReason  string
}

// runToolLoop drives a bounded multi-step conversation: the model is called
// with the toolset, requested tools are executed locally, their results are
// appended as tool messages, and the loop repeats until the model stops
// calling tools or the step budget runs out. When sink is non-nil every
// assistant turn is streamed and text deltas are forwarded as they arrive.
func runToolLoop(ctx context.Context, provider LLM, tools *toolset, messages []llm.Message, maxSteps int, sink Sink) (*loopResult, error) {
	res := &loopResult{}

	turn := func(req llm.Request) (*llm.Completion, error) {
		if sink != nil {
			return provider.Stream(ctx, req, sink.Chunk)
		}
		return provider.Complete(ctx, req)
	}

	for step := 0; step < maxSteps; step++ {
		comp, err := turn(llm.Request{Messages: messages, Tools: tools.defs})
		if err != nil {
			return nil, err
		}

		if len(comp.ToolCalls) == 0 {
			res.Text = comp.Content
			res.FinishReason = comp.FinishReason
			res.Steps = append(res.Steps, loopStep{Type: "answer", Text: comp.Content})
			return res, nil
		}

		names := make([]string, len(comp.ToolCalls))
		for i, tc := range comp.ToolCalls {
			names[i] = tc.Function.Name
		}
		res.Steps = append(res.Steps, loopStep{Type: "tool-call", Text: comp.Content, ToolCalls: names})

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})

		for _, tc := range comp.ToolCalls {
			out, err := tools.execute(ctx, tc)
			if err != nil {
				return nil, fmt.Errorf("executing tool %s: %w", tc.Function.Name, err)
			}
			res.ToolCallsMade++

			encoded, err := json.Marshal(out)
			if err != nil {
				return nil, fmt.Errorf("encoding result of tool %s: %w", tc.Function.Name, err)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    string(encoded),
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			})
		}
	}

	// Step budget exhausted: ask for a final answer without tools so the
	// conversation always ends with usable text.
	comp, err := turn(llm.Request{Messages: messages})
	if err != nil {
		return nil, err
	}
	res.Text = comp.Content
	res.FinishReason = comp.FinishReason
	res.Steps = append(res.Steps, loopStep{Type: "answer", Text: res.Text})
	return res, nil
}

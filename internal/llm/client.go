package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Message is one chat turn in the OpenAI chat-completions format.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the schema half of a tool definition.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is a single chat-completion request. Model falls back to the
// client's configured default when empty.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the assistant's reply to one request.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Config holds the provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat-completions endpoint. Calls are
// never retried: a paid generation that is retried risks double-billing the
// upstream provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates a client for the given provider configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

func (c *Client) buildBody(req Request, stream bool) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	if stream {
		body["stream"] = true
	}
	return json.Marshal(body)
}

func (c *Client) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload, err := c.buildBody(req, stream)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling completion endpoint: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

// Complete performs a buffered chat completion.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading completion response: %w", err)
	}
	return parseCompletion(body)
}

// CompleteJSON performs a buffered completion in JSON mode and unmarshals
// the reply into v.
func (c *Client) CompleteJSON(ctx context.Context, req Request, v any) error {
	req.JSONMode = true
	comp, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(comp.Content), v); err != nil {
		return fmt.Errorf("decoding structured completion: %w", err)
	}
	return nil
}

func parseCompletion(body []byte) (*Completion, error) {
	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return nil, fmt.Errorf("completion response has no choices")
	}

	comp := &Completion{
		Content:      choice.Get("message.content").String(),
		FinishReason: choice.Get("finish_reason").String(),
		Usage: Usage{
			PromptTokens:     int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
			CompletionTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
			TotalTokens:      int(gjson.GetBytes(body, "usage.total_tokens").Int()),
		},
	}

	if raw := choice.Get("message.tool_calls"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &comp.ToolCalls); err != nil {
			return nil, fmt.Errorf("decoding tool calls: %w", err)
		}
	}
	return comp, nil
}

// Stream performs a streaming chat completion, invoking onDelta for every
// text fragment in arrival order. Chunks are forwarded as they are read from
// the wire; the call returns the assembled completion after the stream's
// terminal event. If onDelta returns an error the stream is aborted and that
// error is returned.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) (*Completion, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	comp := &Completion{}
	var content strings.Builder
	calls := map[int]*ToolCall{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		if delta := gjson.Get(data, "choices.0.delta.content"); delta.Exists() && delta.String() != "" {
			content.WriteString(delta.String())
			if err := onDelta(delta.String()); err != nil {
				return nil, err
			}
		}

		// Tool calls arrive as indexed fragments; name and arguments are
		// accumulated until the stream ends.
		if tcs := gjson.Get(data, "choices.0.delta.tool_calls"); tcs.Exists() {
			for _, frag := range tcs.Array() {
				idx := int(frag.Get("index").Int())
				call, ok := calls[idx]
				if !ok {
					call = &ToolCall{Type: "function"}
					calls[idx] = call
				}
				if id := frag.Get("id").String(); id != "" {
					call.ID = id
				}
				if name := frag.Get("function.name").String(); name != "" {
					call.Function.Name = name
				}
				call.Function.Arguments += frag.Get("function.arguments").String()
			}
		}

		if fr := gjson.Get(data, "choices.0.finish_reason"); fr.Exists() && fr.String() != "" {
			comp.FinishReason = fr.String()
		}
		// Some providers emit usage on the final chunk.
		if usage := gjson.Get(data, "usage"); usage.Exists() {
			comp.Usage.PromptTokens = int(usage.Get("prompt_tokens").Int())
			comp.Usage.CompletionTokens = int(usage.Get("completion_tokens").Int())
			comp.Usage.TotalTokens = int(usage.Get("total_tokens").Int())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading completion stream: %w", err)
	}

	comp.Content = content.String()
	for i := 0; i < len(calls); i++ {
		if call, ok := calls[i]; ok {
			comp.ToolCalls = append(comp.ToolCalls, *call)
		}
	}
	return comp, nil
}

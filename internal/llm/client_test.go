package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
}

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "hello back"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	})

	comp, err := client.Complete(context.Background(), Request{
		Messages:    []Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello back", comp.Content)
	assert.Equal(t, "stop", comp.FinishReason)
	assert.Equal(t, 15, comp.Usage.TotalTokens)

	// Model falls back to the client default.
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, 0.7, gotBody["temperature"])
	assert.Equal(t, float64(100), gotBody["max_tokens"])
	assert.NotContains(t, gotBody, "stream")
}

func TestCompleteProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited upstream"}}`)
	})

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited upstream")
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	})

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteJSON(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"choices": [{"message": {"content": "{\"score\": 8}"}}]}`)
	})

	var out struct {
		Score int `json:"score"`
	}
	err := client.CompleteJSON(context.Background(), Request{}, &out)
	require.NoError(t, err)

	assert.Equal(t, 8, out.Score)
	assert.Equal(t, map[string]any{"type": "json_object"}, gotBody["response_format"])
}

func TestCompleteToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "searchWeb", "arguments": "{\"query\":\"go\"}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	})

	comp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)

	require.Len(t, comp.ToolCalls, 1)
	assert.Equal(t, "searchWeb", comp.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"query":"go"}`, comp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", comp.FinishReason)
}

func TestStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	comp, err := client.Stream(context.Background(), Request{}, func(text string) error {
		deltas = append(deltas, text)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", comp.Content)
	assert.Equal(t, "stop", comp.FinishReason)
	assert.Equal(t, 9, comp.Usage.TotalTokens)
}

func TestStreamAssemblesToolCallFragments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"function\":{\"name\":\"calculateMath\",\"arguments\":\"{\\\"expr\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ession\\\":\\\"1+1\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	comp, err := client.Stream(context.Background(), Request{}, func(string) error { return nil })
	require.NoError(t, err)

	require.Len(t, comp.ToolCalls, 1)
	assert.Equal(t, "call_1", comp.ToolCalls[0].ID)
	assert.Equal(t, "calculateMath", comp.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"expression":"1+1"}`, comp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", comp.FinishReason)
}

func TestStreamOnDeltaErrorAborts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n\n")
	})

	sinkErr := fmt.Errorf("client went away")
	_, err := client.Stream(context.Background(), Request{}, func(string) error {
		return sinkErr
	})
	require.ErrorIs(t, err, sinkErr)
}

func TestCountTokens(t *testing.T) {
	if n := CountTokens(""); n != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", n)
	}
	n := CountTokens("The quick brown fox jumps over the lazy dog.")
	if n < 5 || n > 20 {
		t.Errorf("token count %d outside plausible range", n)
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/execution"
	"github.com/rvannoy/scrip/internal/saga"
)

// Runner executes a validated invocation. Implemented by *saga.Saga.
type Runner interface {
	Run(ctx context.Context, inv *agent.Invocation, sink agent.Sink) (*saga.Outcome, error)
}

// ExecutionReader retrieves execution records with the ownership check
// applied. Implemented by *execution.Tracker.
type ExecutionReader interface {
	Get(ctx context.Context, id, requesterUserID string) (*execution.Record, error)
}

// agentsHandler serves agent invocation and execution polling.
type agentsHandler struct {
	registry   *agent.Registry
	runner     Runner
	executions ExecutionReader
}

func newAgentsHandler(registry *agent.Registry, runner Runner, executions ExecutionReader) *agentsHandler {
	return &agentsHandler{registry: registry, runner: runner, executions: executions}
}

// RunAgent handles POST /api/v1/agents/{agentID}. The response is either a
// buffered JSON document or an SSE stream, chosen by the validated request.
func (h *agentsHandler) RunAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	ag := h.registry.Get(agentID)
	if ag == nil {
		writeError(w, http.StatusNotFound, "unknown_agent", fmt.Sprintf("unknown agent %q", agentID))
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	// All identifiers, including userId, are captured here once; nothing
	// later re-reads the request body.
	inv, err := ag.Prepare(body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if inv.Stream {
		h.runStreaming(w, r, inv)
		return
	}

	outcome, err := h.runner.Run(r.Context(), inv, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response := map[string]any{
		"executionId":      outcome.ExecutionID,
		"creditsRemaining": outcome.CreditsRemaining,
	}
	for k, v := range outcome.Payload {
		response[k] = v
	}
	writeJSON(w, http.StatusOK, response)
}

// runStreaming serves the invocation as an SSE stream. Headers are written
// lazily on the first chunk, so failures before any output still produce a
// plain JSON error response.
func (h *agentsHandler) runStreaming(w http.ResponseWriter, r *http.Request, inv *agent.Invocation) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	sink := &sseSink{w: w, flusher: flusher}
	outcome, err := h.runner.Run(r.Context(), inv, sink)
	if err != nil {
		if !sink.started {
			writeDomainError(w, err)
			return
		}
		// The stream is already open; deliver the failure in-band. The
		// execution ID lets the client poll for the durable status.
		_, _, message, executionID := classify(err)
		sink.event(errorResponse{Error: message, ExecutionID: executionID})
		return
	}

	sink.start()
	sink.raw("data: [DONE]\n\n")
	sink.event(map[string]any{
		"executionId":      outcome.ExecutionID,
		"creditsRemaining": outcome.CreditsRemaining,
		"status":           "completed",
	})
}

// GetExecution handles GET /api/v1/executions/{executionID}. The requesting
// user is identified by the userId query parameter; records are only
// returned to their owner.
func (h *agentsHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	userID := r.URL.Query().Get("userId")
	if executionID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing executionId or userId")
		return
	}

	rec, err := h.executions.Get(r.Context(), executionID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAgents handles GET /api/v1/agents.
func (h *agentsHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	type agentInfo struct {
		ID   string `json:"id"`
		Cost int    `json:"cost"`
	}
	agents := make([]agentInfo, 0)
	for _, id := range h.registry.IDs() {
		agents = append(agents, agentInfo{ID: id, Cost: h.registry.Get(id).Cost()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// sseSink writes SSE events, setting stream headers on first use.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

// Chunk forwards one text fragment to the client and flushes immediately, so
// transport backpressure reaches the producer instead of growing a buffer.
func (s *sseSink) Chunk(text string) error {
	if text == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"chunk": text})
	if err != nil {
		return err
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) event(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.raw(fmt.Sprintf("data: %s\n\n", payload))
}

func (s *sseSink) raw(data string) {
	s.start()
	_, _ = io.WriteString(s.w, data)
	s.flusher.Flush()
}

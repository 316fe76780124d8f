package agent

import (
	"context"
	"fmt"

	"github.com/rvannoy/scrip/internal/llm"
)

// Agent IDs and their fixed per-invocation costs in credits. Costs are looked
// up once while validating a request and carried through the rest of the
// execution unchanged.
const (
	ContentEngineID = "content-engine"
	ContentWizardID = "content-wizard"
	ResearchID      = "research-engine"
	ChatID          = "streaming-chat"

	ContentEngineCost = 1
	ContentWizardCost = 1
	ResearchCost      = 10
	ChatCost          = 5
)

// LLM is the provider interface agents call. Implemented by *llm.Client.
type LLM interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
	CompleteJSON(ctx context.Context, req llm.Request, v any) error
	Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (*llm.Completion, error)
}

// Sink receives incremental text fragments from a streaming invocation, in
// order, as they are produced.
type Sink interface {
	Chunk(text string) error
}

// Result is the outcome of a successful invocation. Payload is the
// client-facing response body (empty for streaming invocations, whose text
// already went through the sink). Output is the bounded summary persisted on
// the execution record: counts and metrics, never the full artifact.
type Result struct {
	Payload map[string]any
	Output  map[string]any
}

// Invocation is a validated, ready-to-run agent call. UserID is snapshotted
// from the request body during validation; everything downstream uses this
// copy and never re-reads the transport input.
type Invocation struct {
	AgentID      string
	UserID       string
	Cost         int
	Stream       bool
	InputSummary map[string]any
	Invoke       func(ctx context.Context, sink Sink) (*Result, error)
}

// Agent validates raw request bodies into runnable invocations.
type Agent interface {
	ID() string
	Cost() int
	Prepare(body []byte) (*Invocation, error)
}

// ValidationError marks a malformed or out-of-range request. No side effects
// have occurred when one is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Registry holds the available agents keyed by ID.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry creates the standard agent set backed by the given provider.
func NewRegistry(provider LLM) *Registry {
	r := &Registry{agents: make(map[string]Agent)}
	for _, a := range []Agent{
		NewContentEngine(provider),
		NewContentWizard(provider),
		NewResearchEngine(provider),
		NewChat(provider),
	} {
		r.agents[a.ID()] = a
	}
	return r
}

// Get returns the agent with the given ID, or nil if unknown.
func (r *Registry) Get(id string) Agent {
	return r.agents[id]
}

// IDs returns the registered agent IDs.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rvannoy/scrip/internal/account"
	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/audit"
	"github.com/rvannoy/scrip/internal/execution"
	"github.com/rvannoy/scrip/internal/llm"
	"github.com/rvannoy/scrip/internal/saga"
)

const testAdminKey = "test-admin-key"

// stubLLM satisfies agent.LLM; the fake runner intercepts before any agent
// actually invokes it.
type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	return &llm.Completion{}, nil
}

func (stubLLM) CompleteJSON(ctx context.Context, req llm.Request, v any) error {
	return nil
}

func (stubLLM) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (*llm.Completion, error) {
	return &llm.Completion{}, nil
}

type fakeRunner struct {
	outcome *saga.Outcome
	err     error
	chunks  []string
	gotInv  *agent.Invocation
}

func (f *fakeRunner) Run(ctx context.Context, inv *agent.Invocation, sink agent.Sink) (*saga.Outcome, error) {
	f.gotInv = inv
	if sink != nil {
		for _, c := range f.chunks {
			if err := sink.Chunk(c); err != nil {
				return nil, err
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeExecutions struct {
	records map[string]*execution.Record
}

func (f *fakeExecutions) Get(ctx context.Context, id, requesterUserID string) (*execution.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, execution.ErrNotFound
	}
	if rec.UserID != requesterUserID {
		return nil, execution.ErrUnauthorized
	}
	return rec, nil
}

type fakeAccounts struct {
	accounts map[string]*account.Account
}

func (f *fakeAccounts) Create(ctx context.Context, in account.CreateInput) (*account.Account, bool, error) {
	if a, ok := f.accounts[in.UserID]; ok {
		return a, false, nil
	}
	a := &account.Account{UserID: in.UserID, Credits: account.InitialCredits}
	f.accounts[in.UserID] = a
	return a, true, nil
}

func (f *fakeAccounts) Get(ctx context.Context, userID string) (*account.Account, error) {
	a, ok := f.accounts[userID]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a, nil
}

type fakeGranter struct {
	grants []string
}

func (f *fakeGranter) Grant(userID string, amount int) {
	f.grants = append(f.grants, userID)
}

type fakeAudit struct {
	gotQuery audit.Query
	events   []*audit.Event
}

func (f *fakeAudit) List(ctx context.Context, q audit.Query) ([]*audit.Event, error) {
	f.gotQuery = q
	return f.events, nil
}

type testServer struct {
	handler    http.Handler
	runner     *fakeRunner
	executions *fakeExecutions
	accounts   *fakeAccounts
	granter    *fakeGranter
	audit      *fakeAudit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		runner:     &fakeRunner{},
		executions: &fakeExecutions{records: make(map[string]*execution.Record)},
		accounts:   &fakeAccounts{accounts: make(map[string]*account.Account)},
		granter:    &fakeGranter{},
		audit:      &fakeAudit{},
	}
	ts.handler = NewRouter(RouterDeps{
		Registry:   agent.NewRegistry(stubLLM{}),
		Runner:     ts.runner,
		Executions: ts.executions,
		Accounts:   ts.accounts,
		Granter:    ts.granter,
		Audit:      ts.audit,
		AdminKey:   testAdminKey,
	})
	return ts
}

func (ts *testServer) request(t *testing.T, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminKey)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRunAgentBufferedSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.outcome = &saga.Outcome{
		ExecutionID:      "exec_1",
		CreditsRemaining: 99,
		Payload:          map[string]any{"result": map[string]any{"title": "T"}},
	}

	body := `{"userId":"u1","content":"some notes on a topic","format":"blog"}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/content-wizard", body, false)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	if out["executionId"] != "exec_1" {
		t.Errorf("expected executionId exec_1, got %v", out["executionId"])
	}
	if out["creditsRemaining"] != float64(99) {
		t.Errorf("expected creditsRemaining 99, got %v", out["creditsRemaining"])
	}
	if out["result"] == nil {
		t.Error("expected agent payload merged into response")
	}
	if ts.runner.gotInv == nil || ts.runner.gotInv.UserID != "u1" {
		t.Errorf("runner received wrong invocation: %+v", ts.runner.gotInv)
	}
}

func TestRunAgentValidationError(t *testing.T) {
	ts := newTestServer(t)

	body := `{"userId":"u1","content":"short","format":"blog"}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/content-wizard", body, false)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	if out["code"] != "validation_error" {
		t.Errorf("expected validation_error, got %v", out["code"])
	}
	// Validation fails before anything runs.
	if ts.runner.gotInv != nil {
		t.Error("runner must not be called on validation failure")
	}
}

func TestRunAgentUnknown(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodPost, "/api/v1/agents/no-such-agent", `{}`, false)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if out := decodeJSON(t, w); out["code"] != "unknown_agent" {
		t.Errorf("expected unknown_agent, got %v", out["code"])
	}
}

func TestRunAgentInsufficientCredits(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.err = &saga.Error{ExecutionID: "exec_2", Err: account.ErrInsufficientCredits}

	body := `{"userId":"u1","content":"some notes on a topic","format":"blog"}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/content-wizard", body, false)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	if out["code"] != "insufficient_credits" {
		t.Errorf("expected insufficient_credits, got %v", out["code"])
	}
	if out["executionId"] != "exec_2" {
		t.Errorf("expected execution ID in error response, got %v", out["executionId"])
	}
}

func TestRunAgentInternalErrorIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.err = &saga.Error{ExecutionID: "exec_3", Err: context.DeadlineExceeded}

	body := `{"userId":"u1","content":"some notes on a topic","format":"blog"}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/content-wizard", body, false)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	out := decodeJSON(t, w)
	if out["error"] != "agent execution failed" {
		t.Errorf("internal detail leaked into response: %v", out["error"])
	}
}

func TestRunAgentStreaming(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.chunks = []string{"Hello ", "world"}
	ts.runner.outcome = &saga.Outcome{ExecutionID: "exec_4", CreditsRemaining: 95}

	body := `{"userId":"u1","messages":[{"role":"user","content":"hi"}]}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/streaming-chat", body, false)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	got := w.Body.String()
	for _, want := range []string{
		`data: {"chunk":"Hello "}`,
		`data: {"chunk":"world"}`,
		"data: [DONE]",
		`"executionId":"exec_4"`,
		`"status":"completed"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stream missing %q in:\n%s", want, got)
		}
	}
}

func TestRunAgentStreamingFailureBeforeOutput(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.err = &saga.Error{ExecutionID: "exec_5", Err: account.ErrInsufficientCredits}

	body := `{"userId":"u1","messages":[{"role":"user","content":"hi"}]}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/streaming-chat", body, false)

	// No chunk was written, so the client gets a plain JSON error.
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error before stream start, got %q", ct)
	}
}

func TestRunAgentStreamingFailureMidStream(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.chunks = []string{"partial "}
	ts.runner.err = &saga.Error{ExecutionID: "exec_6", Err: context.DeadlineExceeded}

	body := `{"userId":"u1","messages":[{"role":"user","content":"hi"}]}`
	w := ts.request(t, http.MethodPost, "/api/v1/agents/streaming-chat", body, false)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}
	got := w.Body.String()
	if !strings.Contains(got, `data: {"chunk":"partial "}`) {
		t.Errorf("expected partial chunk in stream:\n%s", got)
	}
	if !strings.Contains(got, `"error":"agent execution failed"`) {
		t.Errorf("expected in-band error event:\n%s", got)
	}
	if !strings.Contains(got, `"executionId":"exec_6"`) {
		t.Errorf("expected execution ID in error event:\n%s", got)
	}
}

func TestGetExecution(t *testing.T) {
	ts := newTestServer(t)
	ts.executions.records["exec_7"] = &execution.Record{
		ID: "exec_7", UserID: "owner", AgentID: "streaming-chat",
		Status: execution.StatusCompleted, Cost: 5,
	}

	w := ts.request(t, http.MethodGet, "/api/v1/executions/exec_7?userId=owner", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	if out["id"] != "exec_7" || out["status"] != "completed" {
		t.Errorf("unexpected record: %v", out)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/executions/exec_7?userId=intruder", "", false)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", w.Code)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/executions/missing?userId=owner", "", false)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing record, got %d", w.Code)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/executions/exec_7", "", false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without userId, got %d", w.Code)
	}
}

func TestListAgents(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodGet, "/api/v1/agents", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	out := decodeJSON(t, w)
	agents, ok := out["agents"].([]any)
	if !ok || len(agents) != 4 {
		t.Errorf("expected 4 agents, got %v", out["agents"])
	}
}

func TestCreateAccountRequiresAdminKey(t *testing.T) {
	ts := newTestServer(t)
	w := ts.request(t, http.MethodPost, "/api/v1/accounts", `{"userId":"u1"}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", w.Code)
	}
}

func TestCreateAccountIdempotent(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/accounts", `{"userId":"u1"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first create, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	if out["credits"] != float64(account.InitialCredits) {
		t.Errorf("expected initial credits, got %v", out["credits"])
	}
	if len(ts.granter.grants) != 1 || ts.granter.grants[0] != "u1" {
		t.Errorf("expected one grant for u1, got %v", ts.granter.grants)
	}

	w = ts.request(t, http.MethodPost, "/api/v1/accounts", `{"userId":"u1"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat create, got %d", w.Code)
	}
	// No second grant.
	if len(ts.granter.grants) != 1 {
		t.Errorf("repeat create must not grant again, got %v", ts.granter.grants)
	}

	w = ts.request(t, http.MethodPost, "/api/v1/accounts", `{}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing userId, got %d", w.Code)
	}
}

func TestGetAccount(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.accounts["u1"] = &account.Account{UserID: "u1", Credits: 42}

	w := ts.request(t, http.MethodGet, "/api/v1/accounts/u1", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	out := decodeJSON(t, w)
	if out["credits"] != float64(42) {
		t.Errorf("expected 42 credits, got %v", out["credits"])
	}

	w = ts.request(t, http.MethodGet, "/api/v1/accounts/missing", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListAuditEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.audit.events = []*audit.Event{{ID: "ev1", UserID: "u1", Delta: -5, Kind: audit.KindDebit}}

	w := ts.request(t, http.MethodGet, "/api/v1/admin/audit?userId=u1&kind=debit&limit=10", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeJSON(t, w)
	events, ok := out["events"].([]any)
	if !ok || len(events) != 1 {
		t.Errorf("expected 1 event, got %v", out["events"])
	}
	if ts.audit.gotQuery.UserID != "u1" || ts.audit.gotQuery.Kind != "debit" || ts.audit.gotQuery.Limit != 10 {
		t.Errorf("filters not forwarded: %+v", ts.audit.gotQuery)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/admin/audit?limit=5000", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range limit, got %d", w.Code)
	}

	w = ts.request(t, http.MethodGet, "/api/v1/admin/audit", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without admin key, got %d", w.Code)
	}
}

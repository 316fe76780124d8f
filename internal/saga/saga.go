// Package saga implements the metered execution saga: the one place where
// credit accounting, execution tracking and agent invocation are tied
// together. Every agent request runs through Saga.Run, which guarantees that
// credits are debited if and only if the outcome was durably recorded, and
// that any debit for a failed execution is refunded exactly once.
package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/execution"
)

// Ledger is the credit-accounting interface. Reserve must be atomic against
// the backing store: concurrent reservations may interleave arbitrarily and
// must never overdraw a balance.
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount int) (remaining int, err error)
	Compensate(ctx context.Context, userID string, amount int) error
}

// Tracker is the execution-record interface. The saga is its only caller on
// the write path.
type Tracker interface {
	Begin(ctx context.Context, in execution.BeginInput) error
	Complete(ctx context.Context, id string, output map[string]any) error
	Fail(ctx context.Context, id string, errSummary string) error
}

// Auditor receives one event per balance mutation. RefundFailed is the
// operator channel for compensation failures and must be durable before the
// saga returns.
type Auditor interface {
	Debit(userID, executionID, agentID string, amount int)
	Refund(userID, executionID, agentID string, amount int)
	RefundFailed(ctx context.Context, userID, executionID, agentID string, amount int, note string)
}

// Metrics is the optional metrics hook for saga outcomes.
type Metrics interface {
	IncExecution(agentID, status string)
	ObserveExecutionDuration(agentID string, seconds float64)
	AddCreditsDebited(n int)
	AddCreditsRefunded(n int)
	IncCompensationFailure()
}

// Outcome is the result of a successful saga run. Payload is nil for
// streaming invocations, whose content already went to the caller's sink.
type Outcome struct {
	ExecutionID      string
	CreditsRemaining int
	Payload          map[string]any
}

// Error wraps a saga failure together with the execution ID generated for
// the attempt, so every error response can carry a handle the client may
// poll later.
type Error struct {
	ExecutionID string
	Err         error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Saga orchestrates one metered execution per Run call. It holds no
// per-request state; all request state lives in locals so that concurrent
// runs never interfere outside the stores.
type Saga struct {
	ledger        Ledger
	tracker       Tracker
	auditor       Auditor
	metrics       Metrics
	invokeTimeout time.Duration
	now           func() time.Time // injectable clock for testing
}

// Config holds the saga's collaborators.
type Config struct {
	Ledger        Ledger
	Tracker       Tracker
	Auditor       Auditor
	Metrics       Metrics
	InvokeTimeout time.Duration
}

// New creates a saga orchestrator.
func New(cfg Config) *Saga {
	timeout := cfg.InvokeTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Saga{
		ledger:        cfg.Ledger,
		tracker:       cfg.Tracker,
		auditor:       cfg.Auditor,
		metrics:       cfg.Metrics,
		invokeTimeout: timeout,
		now:           time.Now,
	}
}

// Run executes a validated invocation through the full lifecycle:
//
//	Reserving -> Tracking -> Invoking -> Finalizing | Compensating
//
// Validation already happened in Agent.Prepare, so inv carries a snapshot of
// the user ID and the fixed cost; nothing here re-reads transport input.
// Failures before the reservation return with no side effects. Failures from
// the invocation onward record the failure first and then refund the debit,
// in that order, exactly once. A cancelled caller context (client
// disconnect) during the invocation takes the same compensation path; the
// bookkeeping writes run on a cancellation-immune context so a dropped
// connection cannot strand a debit.
func (s *Saga) Run(ctx context.Context, inv *agent.Invocation, sink agent.Sink) (*Outcome, error) {
	start := s.now()
	execID := execution.NewID(start)
	log := slog.With("execution_id", execID, "agent_id", inv.AgentID, "user_id", inv.UserID)

	fail := func(err error) (*Outcome, error) {
		return nil, &Error{ExecutionID: execID, Err: err}
	}

	// Reserving. On failure nothing was debited and nothing needs cleanup.
	remaining, err := s.ledger.Reserve(ctx, inv.UserID, inv.Cost)
	if err != nil {
		return fail(err)
	}
	s.auditor.Debit(inv.UserID, execID, inv.AgentID, inv.Cost)
	if s.metrics != nil {
		s.metrics.AddCreditsDebited(inv.Cost)
	}

	// Tracking. From here on every exit must either complete the record or
	// run the compensation sequence.
	err = s.tracker.Begin(ctx, execution.BeginInput{
		ID:      execID,
		AgentID: inv.AgentID,
		UserID:  inv.UserID,
		Input:   inv.InputSummary,
		Cost:    inv.Cost,
	})
	if err != nil {
		// The debit landed but no record exists; refund immediately. The
		// audit log keeps the pair visible either way.
		log.Error("failed to create execution record", "error", err)
		s.compensate(ctx, log, inv, execID, "")
		return fail(err)
	}

	// Invoking. No retries: a repeated call could double-bill the provider.
	invokeCtx, cancel := context.WithTimeout(ctx, s.invokeTimeout)
	result, err := inv.Invoke(invokeCtx, sink)
	cancel()
	if err != nil {
		log.Warn("agent invocation failed", "error", err)
		s.compensate(ctx, log, inv, execID, err.Error())
		if s.metrics != nil {
			s.metrics.IncExecution(inv.AgentID, "failed")
			s.metrics.ObserveExecutionDuration(inv.AgentID, s.now().Sub(start).Seconds())
		}
		return fail(err)
	}

	// Finalizing. The record write must survive a caller that disconnected
	// after the last chunk was delivered.
	if err := s.tracker.Complete(context.WithoutCancel(ctx), execID, result.Output); err != nil {
		log.Error("failed to finalize execution record", "error", err)
		s.compensate(ctx, log, inv, execID, err.Error())
		if s.metrics != nil {
			s.metrics.IncExecution(inv.AgentID, "failed")
		}
		return fail(err)
	}

	if s.metrics != nil {
		s.metrics.IncExecution(inv.AgentID, "completed")
		s.metrics.ObserveExecutionDuration(inv.AgentID, s.now().Sub(start).Seconds())
	}

	return &Outcome{
		ExecutionID:      execID,
		CreditsRemaining: remaining,
		Payload:          result.Payload,
	}, nil
}

// compensate runs the failure bookkeeping: mark the record failed, then
// refund the debit. The order matters; a crash mid-compensation must still
// leave an auditable failed record even if the refund did not land. The
// caller's context may already be cancelled, so all writes use a
// cancellation-immune copy. A refund failure is logged and audited but never
// masks the error the caller is about to receive. An empty reason means no
// record was created, so there is nothing to mark failed.
func (s *Saga) compensate(ctx context.Context, log *slog.Logger, inv *agent.Invocation, execID string, reason string) {
	bg := context.WithoutCancel(ctx)

	if reason != "" {
		if err := s.tracker.Fail(bg, execID, reason); err != nil {
			log.Error("failed to mark execution failed", "error", err)
		}
	}

	if err := s.ledger.Compensate(bg, inv.UserID, inv.Cost); err != nil {
		log.Error("failed to refund credits", "amount", inv.Cost, "error", err)
		s.auditor.RefundFailed(bg, inv.UserID, execID, inv.AgentID, inv.Cost, err.Error())
		if s.metrics != nil {
			s.metrics.IncCompensationFailure()
		}
		return
	}

	s.auditor.Refund(inv.UserID, execID, inv.AgentID, inv.Cost)
	if s.metrics != nil {
		s.metrics.AddCreditsRefunded(inv.Cost)
	}
}

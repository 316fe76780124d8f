package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SyncInserter persists a single event immediately. Implemented by Store.
type SyncInserter interface {
	Insert(ctx context.Context, ev Event) error
}

// Recorder is the saga's audit channel. Routine debit/refund events go
// through the batching collector; refund failures are written synchronously
// so the operator-visible record survives even if the process dies right
// after.
type Recorder struct {
	collector *Collector
	store     SyncInserter
}

// NewRecorder creates a recorder over the given collector and store.
func NewRecorder(collector *Collector, store SyncInserter) *Recorder {
	return &Recorder{collector: collector, store: store}
}

// Debit records a successful reservation.
func (r *Recorder) Debit(userID, executionID, agentID string, amount int) {
	r.collector.Record(Event{
		UserID:      userID,
		ExecutionID: executionID,
		AgentID:     agentID,
		Delta:       -amount,
		Kind:        KindDebit,
	})
}

// Refund records a successful compensation.
func (r *Recorder) Refund(userID, executionID, agentID string, amount int) {
	r.collector.Record(Event{
		UserID:      userID,
		ExecutionID: executionID,
		AgentID:     agentID,
		Delta:       amount,
		Kind:        KindRefund,
	})
}

// Grant records an initial credit grant on account provisioning.
func (r *Recorder) Grant(userID string, amount int) {
	r.collector.Record(Event{
		UserID: userID,
		Delta:  amount,
		Kind:   KindGrant,
	})
}

// RefundFailed records a compensation attempt that itself failed. The write
// is synchronous and best-effort: if even the audit insert fails there is
// nothing left but the log line.
func (r *Recorder) RefundFailed(ctx context.Context, userID, executionID, agentID string, amount int, note string) {
	ev := Event{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExecutionID: executionID,
		AgentID:     agentID,
		Delta:       amount,
		Kind:        KindRefundFailed,
		Note:        note,
		At:          time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, ev); err != nil {
		slog.Error("failed to record refund failure in audit log",
			"execution_id", executionID, "user_id", userID, "error", err)
	}
}

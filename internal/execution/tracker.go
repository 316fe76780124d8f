package execution

import (
	"context"
	"fmt"
	"time"
)

// RecordStore is the storage interface the tracker writes through. It exists
// to allow testing without a real database.
type RecordStore interface {
	Insert(ctx context.Context, rec *Record) error
	MarkCompleted(ctx context.Context, id string, output map[string]any, completedAt time.Time) error
	MarkFailed(ctx context.Context, id string, errSummary string, completedAt time.Time) error
	GetByID(ctx context.Context, id string) (*Record, error)
}

// Tracker is the only writer of execution records. It enforces the
// running -> {completed, failed} state machine and the ownership check on
// reads.
type Tracker struct {
	store RecordStore
	now   func() time.Time // injectable clock for testing
}

// NewTracker creates a tracker over the given record store.
func NewTracker(store RecordStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// BeginInput holds the fields for creating a running record.
type BeginInput struct {
	ID      string
	AgentID string
	UserID  string
	Input   map[string]any
	Cost    int
}

// Begin creates a record in the running state. The saga calls it only after
// the ledger reservation succeeded; a running record therefore always has a
// matching debit.
func (t *Tracker) Begin(ctx context.Context, in BeginInput) error {
	rec := &Record{
		ID:        in.ID,
		AgentID:   in.AgentID,
		UserID:    in.UserID,
		Status:    StatusRunning,
		Input:     in.Input,
		Cost:      in.Cost,
		StartedAt: t.now().UTC(),
	}
	if err := t.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("beginning execution %s: %w", in.ID, err)
	}
	return nil
}

// Complete transitions a running record to completed with an output summary.
func (t *Tracker) Complete(ctx context.Context, id string, output map[string]any) error {
	if err := t.store.MarkCompleted(ctx, id, output, t.now().UTC()); err != nil {
		return fmt.Errorf("completing execution %s: %w", id, err)
	}
	return nil
}

// Fail transitions a running record to failed. The summary is operator-facing
// prose, never a raw stack trace.
func (t *Tracker) Fail(ctx context.Context, id string, errSummary string) error {
	if err := t.store.MarkFailed(ctx, id, errSummary, t.now().UTC()); err != nil {
		return fmt.Errorf("failing execution %s: %w", id, err)
	}
	return nil
}

// Get retrieves a record on behalf of requesterUserID. Records are only
// visible to their owner; a mismatch returns ErrUnauthorized without leaking
// any record contents.
func (t *Tracker) Get(ctx context.Context, id, requesterUserID string) (*Record, error) {
	rec, err := t.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != requesterUserID {
		return nil, ErrUnauthorized
	}
	return rec, nil
}

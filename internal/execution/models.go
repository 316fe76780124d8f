package execution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an execution record. Records are created
// in StatusRunning and transition exactly once to a terminal state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrNotFound is returned when no record exists for the given ID.
	ErrNotFound = errors.New("execution not found")

	// ErrUnauthorized is returned when a record is requested by a user who
	// does not own it.
	ErrUnauthorized = errors.New("execution belongs to another user")
)

// Record is the durable audit entry for one saga invocation. The cost is
// fixed at creation and never mutated; it is the exact amount the ledger
// debited and, on compensation, refunds.
type Record struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agentId"`
	UserID      string         `json:"userId"`
	Status      Status         `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Cost        int            `json:"cost"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// NewID generates a client-visible execution ID. The saga generates it
// before any side effect so that a crash between the ledger debit and record
// creation is still diagnosable from the ledger audit log.
func NewID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("exec_%d_%s", now.UnixMilli(), random)
}

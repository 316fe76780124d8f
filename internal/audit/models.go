package audit

import "time"

// Event kinds recorded in the ledger audit log.
const (
	KindGrant        = "grant"        // initial credit grant on provisioning
	KindDebit        = "debit"        // successful reservation
	KindRefund       = "refund"       // compensation after a failed execution
	KindRefundFailed = "refund_failed" // compensation attempt that itself failed
)

// Event is one ledger audit entry. Every balance mutation emits one, keyed
// by execution ID so a debit without a matching execution record can be
// found by cross-referencing the two tables.
type Event struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ExecutionID string    `json:"executionId,omitempty"`
	AgentID     string    `json:"agentId,omitempty"`
	Delta       int       `json:"delta"`
	Kind        string    `json:"kind"`
	Note        string    `json:"note,omitempty"`
	At          time.Time `json:"at"`
}

// Query defines filters for listing audit events.
type Query struct {
	UserID      string
	ExecutionID string
	Kind        string
	Limit       int
}

package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the ledger audit log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new audit store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes a slice of events in a single multi-row INSERT. It is a
// no-op when events is empty.
func (s *Store) BatchInsert(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 7
	args := make([]any, 0, len(events)*cols)
	rows := make([]string, 0, len(events))

	for i, ev := range events {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, ev.ID, ev.UserID, ev.ExecutionID, ev.AgentID, ev.Delta, ev.Kind, ev.At)
	}

	query := `INSERT INTO ledger_audit
		(id, user_id, execution_id, agent_id, delta, kind, at)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting audit events: %w", err)
	}
	return nil
}

// Insert writes a single event immediately, bypassing the collector. Used
// for refund failures, which must be durable before the saga returns.
func (s *Store) Insert(ctx context.Context, ev Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_audit (id, user_id, execution_id, agent_id, delta, kind, note, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.UserID, ev.ExecutionID, ev.AgentID, ev.Delta, ev.Kind, ev.Note, ev.At,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns audit events matching the query, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]*Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}

	if q.UserID != "" {
		add("user_id = ", q.UserID)
	}
	if q.ExecutionID != "" {
		add("execution_id = ", q.ExecutionID)
	}
	if q.Kind != "" {
		add("kind = ", q.Kind)
	}

	query := `SELECT id, user_id, execution_id, agent_id, delta, kind, COALESCE(note, ''), at
		FROM ledger_audit`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ExecutionID, &ev.AgentID,
			&ev.Delta, &ev.Kind, &ev.Note, &ev.At); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for execution records. Input and output
// summaries are persisted as JSONB documents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new execution store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes a new record. The record must be in StatusRunning; terminal
// states are only reachable through MarkCompleted and MarkFailed.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshaling input summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO executions (id, agent_id, user_id, status, input, cost, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.AgentID, rec.UserID, rec.Status, inputJSON, rec.Cost, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// MarkCompleted transitions a running record to completed. The WHERE guard
// makes the transition a no-op if the record already reached a terminal
// state, preserving the single-transition state machine.
func (s *Store) MarkCompleted(ctx context.Context, id string, output map[string]any, completedAt time.Time) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshaling output summary: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE executions
		 SET status = $2, output = $3, completed_at = $4
		 WHERE id = $1 AND status = $5`,
		id, StatusCompleted, outputJSON, completedAt, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("completing execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed transitions a running record to failed with an error summary.
func (s *Store) MarkFailed(ctx context.Context, id string, errSummary string, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE executions
		 SET status = $2, error = $3, completed_at = $4
		 WHERE id = $1 AND status = $5`,
		id, StatusFailed, errSummary, completedAt, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failing execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a record by its execution ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	rec := &Record{}
	var inputJSON, outputJSON []byte
	var errSummary *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, user_id, status, input, output, error, cost, started_at, completed_at
		 FROM executions
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.AgentID, &rec.UserID, &rec.Status, &inputJSON, &outputJSON,
		&errSummary, &rec.Cost, &rec.StartedAt, &rec.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting execution: %w", err)
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("unmarshaling input summary: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshaling output summary: %w", err)
		}
	}
	if errSummary != nil {
		rec.Error = *errSummary
	}
	return rec, nil
}

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations on the credit ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new ledger store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create provisions an account with the initial credit grant. It is
// idempotent: if the account already exists it is returned unchanged, so the
// identity provider may call it on every sign-in. The boolean reports whether
// a new row was actually inserted.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Account, bool, error) {
	tier := in.Tier
	if tier == "" {
		tier = "free"
	}

	a := &Account{}
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, credits, total_executions, tier)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING user_id, credits, total_executions, tier, created_at, (xmax = 0)`,
		in.UserID, InitialCredits, tier,
	).Scan(&a.UserID, &a.Credits, &a.TotalExecutions, &a.Tier, &a.CreatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("creating account: %w", err)
	}
	return a, inserted, nil
}

// Get retrieves an account by user ID.
func (s *Store) Get(ctx context.Context, userID string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, credits, total_executions, tier, created_at
		 FROM accounts
		 WHERE user_id = $1`,
		userID,
	).Scan(&a.UserID, &a.Credits, &a.TotalExecutions, &a.Tier, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return a, nil
}

// Reserve atomically debits amount credits from the account and increments
// its execution counter. The guard on the balance is part of the UPDATE
// itself, so concurrent reservations against the same account can never
// overdraw it. It returns the balance remaining after the debit.
func (s *Store) Reserve(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("reserve amount must be non-negative, got %d", amount)
	}

	var remaining int
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts
		 SET credits = credits - $2,
		     total_executions = total_executions + 1
		 WHERE user_id = $1 AND credits >= $2
		 RETURNING credits`,
		userID, amount,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// The guarded UPDATE matched nothing: either the account does not
		// exist or the balance is too low. Distinguish with a read.
		if _, getErr := s.Get(ctx, userID); getErr != nil {
			return 0, getErr
		}
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("reserving credits: %w", err)
	}
	return remaining, nil
}

// Compensate atomically credits amount back to the account. It is not
// idempotent: calling it twice refunds twice. The saga is responsible for
// invoking it at most once per execution.
func (s *Store) Compensate(ctx context.Context, userID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("compensate amount must be non-negative, got %d", amount)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET credits = credits + $2 WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("compensating credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

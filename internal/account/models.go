package account

import (
	"errors"
	"time"
)

// InitialCredits is granted to every account when it is first provisioned.
const InitialCredits = 100

// Sentinel errors returned by the ledger store.
var (
	// ErrNotFound is returned when no account exists for the given user ID.
	ErrNotFound = errors.New("account not found")

	// ErrInsufficientCredits is returned by Reserve when the balance is
	// lower than the requested amount. The balance is left untouched.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Account is the per-user credit ledger entry. The balance is mutated
// exclusively through Store.Reserve and Store.Compensate; callers must never
// read-then-write credits themselves.
type Account struct {
	UserID          string    `json:"userId"`
	Credits         int       `json:"credits"`
	TotalExecutions int       `json:"totalExecutions"`
	Tier            string    `json:"tier"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CreateInput holds the fields for provisioning a new account.
type CreateInput struct {
	UserID string `json:"userId"`
	Tier   string `json:"tier"`
}

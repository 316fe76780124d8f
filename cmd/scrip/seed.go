package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rvannoy/scrip/internal/account"
	"github.com/rvannoy/scrip/internal/audit"
	"github.com/rvannoy/scrip/internal/config"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo account",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := account.NewStore(pool)

	a, created, err := store.Create(ctx, account.CreateInput{UserID: "demo-user", Tier: "free"})
	if err != nil {
		return fmt.Errorf("creating demo account: %w", err)
	}

	if !created {
		fmt.Printf("demo account already exists (%d credits remaining)\n", a.Credits)
		return nil
	}

	auditStore := audit.NewStore(pool)
	if err := auditStore.Insert(ctx, audit.Event{
		ID:     uuid.NewString(),
		UserID: a.UserID,
		Delta:  account.InitialCredits,
		Kind:   audit.KindGrant,
		Note:   "seeded demo account",
		At:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("recording grant: %w", err)
	}

	fmt.Printf("\n=== Demo Account Seeded ===\n")
	fmt.Printf("User ID:  %s\n", a.UserID)
	fmt.Printf("Credits:  %d\n", a.Credits)
	fmt.Printf("\nTry it:\n")
	fmt.Printf(`  curl -X POST http://localhost:8080/api/v1/agents/content-wizard \
    -H 'Content-Type: application/json' \
    -d '{"userId":"%s","content":"A short post about compounding interest.","format":"linkedin"}'
`, a.UserID)

	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/infra"
	"storyreel/internal/tier"
)

func main() {
	var (
		idFlag    string
		emailFlag string
		tierFlag  string
	)
	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&tierFlag, "tier", tier.DefaultTier, "tier to assign (tier1..tier4)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	tierName := strings.TrimSpace(strings.ToLower(tierFlag))

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if !tier.Load().Known(tierName) {
		exitWithError(fmt.Errorf("unsupported tier %q", tierFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "usertier")
	users := repo.NewUserRepository(infra.NewSQLRunner(pool, logger))

	if userID == "" {
		lookupCtx, cancelLookup := context.WithTimeout(context.Background(), 5*time.Second)
		user, err := users.GetByEmail(lookupCtx, email)
		cancelLookup()
		if err != nil {
			exitWithError(fmt.Errorf("failed to load user by email: %w", err))
		}
		userID = user.ID
	}

	updateCtx, cancelUpdate := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelUpdate()
	updated, err := users.UpdateTier(updateCtx, userID, tierName)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user tier: %w", err))
	}

	policy := tier.Load().Get(updated.Tier)
	fmt.Printf("User %s (%s) updated to %s\n", updated.ID, updated.Email, updated.Tier)
	fmt.Printf("max_concurrent_jobs=%d\n", policy.MaxConcurrentJobs)
	fmt.Printf("max_batch_size=%d\n", policy.MaxBatchSize)
	fmt.Printf("priority_weight=%d\n", policy.PriorityWeight)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// Package admission enforces per-user concurrency caps derived from the
// user's tier. It is consulted twice: once at submission, where a full user
// gets an immediate rejection, and once at consumption, where a full user's
// task goes back to the queue instead of burning a retry attempt.
package admission

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
	"storyreel/internal/tier"
)

// Decision is the consumption-time verdict for one task.
type Decision int

const (
	// Admit lets the task run now.
	Admit Decision = iota
	// Defer sends the task back to the queue without counting an attempt.
	Defer
)

type Controller struct {
	db       infra.SQLExecutor
	policies tier.Policies
	log      infra.Logger
}

func New(db infra.SQLExecutor, policies tier.Policies, log infra.Logger) *Controller {
	return &Controller{db: db, policies: policies, log: log}
}

// CheckSubmission rejects a new job when the user already runs at their
// tier's concurrency cap. The count query failing is a real error here: a
// submission can afford a 500 and a retry, unlike the hot consumer path.
func (c *Controller) CheckSubmission(ctx context.Context, userID, tierName string) error {
	active, err := c.countProcessing(ctx, userID)
	if err != nil {
		return fmt.Errorf("admission check: %w", err)
	}
	limit := c.policies.Get(tierName).MaxConcurrentJobs
	if active >= limit {
		return fmt.Errorf("%w: %d of %d concurrent jobs in flight", domain.ErrAdmissionRejected, active, limit)
	}
	return nil
}

// AllowConsumption decides whether a claimed task may run. It fails open: if
// the count query errors, the task runs anyway, because stalling the whole
// queue on a flaky read is worse than briefly exceeding one user's cap.
// Counting the task's own job would starve a user sitting exactly at their
// cap, so the consumption count covers the user's other processing jobs.
func (c *Controller) AllowConsumption(ctx context.Context, t domain.SceneTask) Decision {
	var active int
	err := c.db.QueryRow(ctx, sqlinline.QCountOtherProcessingJobs, t.UserID, t.JobID).Scan(&active)
	if err != nil {
		c.log.Warn().Err(err).Str("userId", t.UserID).Msg("admission count failed, failing open")
		return Admit
	}
	if active >= c.policies.Get(t.Tier).MaxConcurrentJobs {
		return Defer
	}
	return Admit
}

func (c *Controller) countProcessing(ctx context.Context, userID string) (int, error) {
	var n int
	if err := c.db.QueryRow(ctx, sqlinline.QCountProcessingJobs, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

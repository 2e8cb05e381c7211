// Package ledger records which completion notifications have already been
// applied. Providers deliver webhooks at least once; the unique constraint on
// webhook_events is what turns redelivery into a detectable duplicate.
package ledger

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// Ledger gates webhook processing on a first-writer-wins insert.
type Ledger struct {
	db infra.SQLExecutor
}

func New(db infra.SQLExecutor) *Ledger {
	return &Ledger{db: db}
}

// Record claims a notification identified by (predictionID, storyID,
// sceneIndex, webhookType). The first caller wins; any later caller gets
// domain.ErrDuplicateNotification and must skip processing.
func (l *Ledger) Record(ctx context.Context, predictionID, storyID string, sceneIndex int, webhookType string) error {
	_, err := l.db.Exec(ctx, sqlinline.QInsertWebhookEvent, predictionID, storyID, sceneIndex, webhookType)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return domain.ErrDuplicateNotification
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

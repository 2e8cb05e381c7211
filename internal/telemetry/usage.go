// Package telemetry records per-generation usage events for cost reporting.
// Recording is fire-and-forget: a failed insert is logged and swallowed so
// billing bookkeeping can never fail a generation.
package telemetry

import (
	"context"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// Cost per generated unit in cents; crude but stable enough for the 24h
// usage report.
var unitCostCents = map[domain.Modality]int{
	domain.ModalityImage: 1,
	domain.ModalityVideo: 25,
	domain.ModalityAudio: 2,
}

type Recorder struct {
	db  infra.SQLExecutor
	log infra.Logger
}

func NewRecorder(db infra.SQLExecutor, log infra.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// RecordGeneration logs one completed (or failed) generation attempt.
func (r *Recorder) RecordGeneration(ctx context.Context, jobID, userID string, modality domain.Modality, units int) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := r.db.Exec(cctx, sqlinline.QInsertUsageEvent, jobID, userID, string(modality), units, units*unitCostCents[modality])
	if err != nil {
		r.log.Warn().Err(err).
			Str("jobId", jobID).
			Str("modality", string(modality)).
			Msg("usage event insert failed")
	}
}

// ModalityUsage is one aggregated row of the usage reports.
type ModalityUsage struct {
	Modality  string `json:"modality"`
	Events    int    `json:"events,omitempty"`
	Units     int    `json:"units"`
	CostCents int    `json:"costCents"`
}

// JobUsage aggregates recorded events for one job.
func (r *Recorder) JobUsage(ctx context.Context, jobID string) ([]ModalityUsage, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectJobUsage, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModalityUsage
	for rows.Next() {
		var u ModalityUsage
		if err := rows.Scan(&u.Modality, &u.Units, &u.CostCents); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UsageLast24h aggregates all events of the trailing day, per modality.
func (r *Recorder) UsageLast24h(ctx context.Context) ([]ModalityUsage, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectUsageLast24h)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModalityUsage
	for rows.Next() {
		var u ModalityUsage
		if err := rows.Scan(&u.Modality, &u.Events, &u.Units, &u.CostCents); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

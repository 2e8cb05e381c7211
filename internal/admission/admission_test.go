package admission

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/tier"
)

type countRow struct {
	n   int
	err error
}

func (r countRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.n
	return nil
}

type fakeExecutor struct {
	count    int
	queryErr error
}

func (f *fakeExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	return countRow{n: f.count, err: f.queryErr}
}

func (f *fakeExecutor) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not used")
}

func (f *fakeExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func newController(db *fakeExecutor) *Controller {
	return New(db, tier.Load(), zerolog.Nop())
}

func TestCheckSubmission(t *testing.T) {
	tests := []struct {
		name     string
		tierName string
		active   int
		wantErr  error
	}{
		{name: "under cap", tierName: "tier2", active: 4, wantErr: nil},
		{name: "at cap", tierName: "tier2", active: 5, wantErr: domain.ErrAdmissionRejected},
		{name: "over cap", tierName: "tier1", active: 3, wantErr: domain.ErrAdmissionRejected},
		{name: "unknown tier falls back to tier1", tierName: "gold", active: 2, wantErr: domain.ErrAdmissionRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(&fakeExecutor{count: tt.active})
			err := c.CheckSubmission(context.Background(), "user-1", tt.tierName)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCheckSubmissionQueryErrorIsFatal(t *testing.T) {
	c := newController(&fakeExecutor{queryErr: errors.New("down")})
	err := c.CheckSubmission(context.Background(), "user-1", "tier2")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrAdmissionRejected) {
		t.Fatal("infrastructure errors must not masquerade as rejections")
	}
}

func TestAllowConsumption(t *testing.T) {
	task := domain.SceneTask{JobID: "job-1", UserID: "user-1", Tier: "tier2"}

	tests := []struct {
		name   string
		others int
		want   Decision
	}{
		{name: "under cap", others: 4, want: Admit},
		{name: "at cap", others: 5, want: Defer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(&fakeExecutor{count: tt.others})
			if got := c.AllowConsumption(context.Background(), task); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAllowConsumptionFailsOpen(t *testing.T) {
	c := newController(&fakeExecutor{queryErr: errors.New("timeout")})
	task := domain.SceneTask{JobID: "job-1", UserID: "user-1", Tier: "tier1"}
	if got := c.AllowConsumption(context.Background(), task); got != Admit {
		t.Fatalf("expected Admit on query error, got %v", got)
	}
}

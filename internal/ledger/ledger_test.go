package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storyreel/internal/domain"
)

type fakeExecutor struct {
	execErr error
	calls   int
	args    []any
}

func (f *fakeExecutor) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.calls++
	f.args = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func (f *fakeExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func TestRecordFirstWriterWins(t *testing.T) {
	db := &fakeExecutor{}
	l := New(db)

	if err := l.Record(context.Background(), "pred-1", "story-1", 2, "video"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.calls != 1 {
		t.Fatalf("expected 1 exec, got %d", db.calls)
	}
	if got := db.args[2]; got != 2 {
		t.Errorf("expected scene index 2, got %v", got)
	}
}

func TestRecordDuplicateMapsToSentinel(t *testing.T) {
	db := &fakeExecutor{execErr: &pgconn.PgError{Code: "23505"}}
	l := New(db)

	err := l.Record(context.Background(), "pred-1", "story-1", 2, "video")
	if !errors.Is(err, domain.ErrDuplicateNotification) {
		t.Fatalf("expected ErrDuplicateNotification, got %v", err)
	}
}

func TestRecordOtherErrorsPassThrough(t *testing.T) {
	dbErr := errors.New("connection reset")
	db := &fakeExecutor{execErr: dbErr}
	l := New(db)

	err := l.Record(context.Background(), "pred-1", "story-1", 0, "image")
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, domain.ErrDuplicateNotification) {
		t.Fatal("non-unique errors must not look like duplicates")
	}
}

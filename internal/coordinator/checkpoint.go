package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// CheckpointStore persists actor state between mutations so a restarted
// process can rehydrate a story mid-flight.
type CheckpointStore interface {
	Load(ctx context.Context, storyID string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, storyID string) error
}

// PgCheckpointStore keeps checkpoints in the coordinator_state table as jsonb.
type PgCheckpointStore struct {
	db infra.SQLExecutor
}

func NewPgCheckpointStore(db infra.SQLExecutor) *PgCheckpointStore {
	return &PgCheckpointStore{db: db}
}

func (s *PgCheckpointStore) Load(ctx context.Context, storyID string) (*State, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, sqlinline.QSelectCoordinatorState, storyID).Scan(&raw)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if st.MediaApplied == nil {
		st.MediaApplied = make(map[int]bool)
	}
	if st.AudioApplied == nil {
		st.AudioApplied = make(map[int]bool)
	}
	return &st, nil
}

func (s *PgCheckpointStore) Save(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if _, err := s.db.Exec(ctx, sqlinline.QUpsertCoordinatorState, st.StoryID, raw); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *PgCheckpointStore) Delete(ctx context.Context, storyID string) error {
	if _, err := s.db.Exec(ctx, sqlinline.QDeleteCoordinatorState, storyID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"storyreel/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		ID:         newMessageID(),
		Attempts:   2,
		EnqueuedAt: time.Now().UTC().Truncate(time.Millisecond),
		Task: domain.SceneTask{
			JobID:      "job-1",
			UserID:     "user-1",
			StoryID:    "story-1",
			SceneIndex: 3,
			Type:       domain.ModalityAudio,
			Tier:       "tier3",
			Priority:   3,
			Narration:  "once upon a time",
			VoiceID:    "voice-a",
		},
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != env.ID || got.Attempts != 2 {
		t.Errorf("bookkeeping lost: %+v", got)
	}
	if got.Task != env.Task {
		t.Errorf("task lost in transit:\n got %+v\nwant %+v", got.Task, env.Task)
	}
}

func TestMessageIDsAreSortableAndUnique(t *testing.T) {
	a := newMessageID()
	b := newMessageID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected id lengths: %q %q", a, b)
	}
	if a == b {
		t.Fatal("ids must be unique")
	}
	if b < a {
		t.Errorf("ids should be time-ordered: %q then %q", a, b)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	for attempts := 1; attempts <= 6; attempts++ {
		d := backoff(attempts)
		want := retryBase << (attempts - 1)
		if want > retryCap {
			want = retryCap
		}
		if d < want || d > want+want/5 {
			t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempts, d, want, want+want/5)
		}
	}

	for i := 0; i < 50; i++ {
		if d := backoff(20); d > retryCap+retryCap/5 {
			t.Fatalf("backoff exceeded cap with jitter: %v", d)
		}
	}
}

// staleDelayedStore hands every promoteDue call the same due-member snapshot,
// the way two consumers racing ZRangeByScore both see a member before either
// removes it. Only the first ZRem succeeds.
type staleDelayedStore struct {
	mu       sync.Mutex
	snapshot []string
	delayed  map[string]bool
	pending  []string
}

func (s *staleDelayedStore) ZRangeByScore(_ context.Context, _ string, _ *redis.ZRangeBy) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(s.snapshot, nil)
}

func (s *staleDelayedStore) ZRem(_ context.Context, _ string, members ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := members[0].(string)
	if !s.delayed[raw] {
		return redis.NewIntResult(0, nil)
	}
	delete(s.delayed, raw)
	return redis.NewIntResult(1, nil)
}

func (s *staleDelayedStore) LPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, values[0].(string))
	return redis.NewIntResult(int64(len(s.pending)), nil)
}

func TestPromoteDuePushesEachMemberOnce(t *testing.T) {
	store := &staleDelayedStore{
		snapshot: []string{"task-a"},
		delayed:  map[string]bool{"task-a": true},
	}

	first, err := promoteDue(context.Background(), store)
	if err != nil {
		t.Fatalf("first promotion: %v", err)
	}
	second, err := promoteDue(context.Background(), store)
	if err != nil {
		t.Fatalf("second promotion: %v", err)
	}
	if first != 1 || second != 0 {
		t.Fatalf("promoted counts: first %d second %d, want 1 and 0", first, second)
	}
	if len(store.pending) != 1 {
		t.Fatalf("pending has %d copies, want 1: %v", len(store.pending), store.pending)
	}
}

func TestProcessingKeyIsPerConsumer(t *testing.T) {
	a := keyProcessing("worker-a")
	b := keyProcessing("worker-b")
	if a == b {
		t.Fatal("consumers must not share a processing list")
	}
	if a != "storyreel:tasks:processing:worker-a" {
		t.Errorf("unexpected key: %s", a)
	}
}

package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

const (
	mailboxSize    = 64
	persistTimeout = 10 * time.Second
	defaultIdle    = 5 * time.Minute
)

// errActorClosed is the internal signal that a message raced an actor's idle
// shutdown; the sender transparently retries against a fresh actor.
var errActorClosed = errors.New("coordinator: actor closed")

// Coordinator owns one actor goroutine per in-flight story. All operations on
// the same story are serialized through that actor's mailbox, so merges and
// counter increments never race. Idle actors shut down after a quiet period
// and are rehydrated from their checkpoint on the next message.
type Coordinator struct {
	store     CheckpointStore
	log       infra.Logger
	idleAfter time.Duration

	mu     sync.Mutex
	actors map[string]*actor
}

type actor struct {
	storyID string
	mailbox chan request
	done    chan struct{}
}

type request struct {
	op    func(st *State) (*State, any, error)
	reply chan reply
}

type reply struct {
	val any
	err error
}

// Option tweaks Coordinator construction.
type Option func(*Coordinator)

// WithIdleTimeout overrides how long an actor without traffic stays resident.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.idleAfter = d }
}

func New(store CheckpointStore, log infra.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		log:       log,
		idleAfter: defaultIdle,
		actors:    make(map[string]*actor),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Init establishes the actor state for a story. A second Init for the same
// story is a no-op returning current progress, so resubmitted jobs for an
// already-running story cannot reset its counters.
func (c *Coordinator) Init(ctx context.Context, p InitParams) (Progress, error) {
	v, err := c.send(ctx, p.StoryID, func(st *State) (*State, any, error) {
		if st != nil {
			return nil, st.progress(), nil
		}
		next := newState(p)
		return next, next.progress(), nil
	})
	if err != nil {
		return Progress{}, err
	}
	return v.(Progress), nil
}

// UpdateImage merges a scene's image result and returns the new progress.
func (c *Coordinator) UpdateImage(ctx context.Context, storyID string, sceneIndex int, url, errMsg string) (Progress, error) {
	return c.updateMedia(ctx, storyID, sceneIndex, false, url, errMsg)
}

// UpdateVideo merges a scene's video result and returns the new progress.
func (c *Coordinator) UpdateVideo(ctx context.Context, storyID string, sceneIndex int, url, errMsg string) (Progress, error) {
	return c.updateMedia(ctx, storyID, sceneIndex, true, url, errMsg)
}

func (c *Coordinator) updateMedia(ctx context.Context, storyID string, sceneIndex int, video bool, url, errMsg string) (Progress, error) {
	v, err := c.send(ctx, storyID, func(st *State) (*State, any, error) {
		if st == nil {
			return nil, Progress{}, nil
		}
		next := st.clone()
		if !next.applyMedia(sceneIndex, video, url, errMsg) {
			return nil, st.progress(), nil
		}
		return next, next.progress(), nil
	})
	if err != nil {
		return Progress{}, err
	}
	return v.(Progress), nil
}

// UpdateAudio merges a scene's voice-over result and returns the new progress.
func (c *Coordinator) UpdateAudio(ctx context.Context, storyID string, u AudioUpdate) (Progress, error) {
	v, err := c.send(ctx, storyID, func(st *State) (*State, any, error) {
		if st == nil {
			return nil, Progress{}, nil
		}
		next := st.clone()
		if !next.applyAudio(u) {
			return nil, st.progress(), nil
		}
		return next, next.progress(), nil
	})
	if err != nil {
		return Progress{}, err
	}
	return v.(Progress), nil
}

// GetProgress reports current progress. Stories with no state, finalized or
// never started, report zero totals.
func (c *Coordinator) GetProgress(ctx context.Context, storyID string) (Progress, error) {
	v, err := c.send(ctx, storyID, func(st *State) (*State, any, error) {
		return nil, st.progress(), nil
	})
	if err != nil {
		return Progress{}, err
	}
	return v.(Progress), nil
}

// Cancel flips the story's cancelled flag. Later updates merge nothing and
// finalize never fires; the flag is durable across restarts.
func (c *Coordinator) Cancel(ctx context.Context, storyID string) error {
	_, err := c.send(ctx, storyID, func(st *State) (*State, any, error) {
		if st == nil || st.Cancelled {
			return nil, st.progress(), nil
		}
		next := st.clone()
		next.Cancelled = true
		return next, next.progress(), nil
	})
	return err
}

// Finalize performs a destructive read: when the story is complete and not
// cancelled it deletes the durable state and hands back the scene bundle for
// the merge. Called on an uninitialized story it reports Success=false, which
// lets a retried finalize after a committed merge settle as a no-op.
func (c *Coordinator) Finalize(ctx context.Context, storyID string) (FinalizeResult, error) {
	v, err := c.send(ctx, storyID, func(st *State) (*State, any, error) {
		if st == nil || st.Cancelled || !st.complete() {
			return nil, FinalizeResult{Success: false, Progress: st.progress()}, nil
		}
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.store.Delete(pctx, st.StoryID); err != nil {
			return nil, nil, err
		}
		res := FinalizeResult{
			Success:  true,
			Progress: st.progress(),
			Scenes:   append([]domain.Scene(nil), st.Scenes...),
		}
		return nil, res, errStateDropped
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return v.(FinalizeResult), nil
}

// errStateDropped tells the actor loop the op already removed durable state
// and the in-memory copy must be discarded rather than re-saved.
var errStateDropped = errors.New("coordinator: state dropped")

// send routes an op through the story's actor, creating one if needed. When a
// message races the actor's idle shutdown the send retries against a fresh
// actor, so callers never observe the lifecycle.
func (c *Coordinator) send(ctx context.Context, storyID string, op func(*State) (*State, any, error)) (any, error) {
	req := request{op: op, reply: make(chan reply, 1)}
	for {
		a := c.actorFor(storyID)
		select {
		case a.mailbox <- req:
		case <-a.done:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		select {
		case rep := <-req.reply:
			if errors.Is(rep.err, errActorClosed) {
				continue
			}
			return rep.val, rep.err
		case <-a.done:
			// The actor may have replied just before exiting.
			select {
			case rep := <-req.reply:
				if errors.Is(rep.err, errActorClosed) {
					continue
				}
				return rep.val, rep.err
			default:
				continue
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) actorFor(storyID string) *actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[storyID]; ok {
		return a
	}
	a := &actor{
		storyID: storyID,
		mailbox: make(chan request, mailboxSize),
		done:    make(chan struct{}),
	}
	c.actors[storyID] = a
	go c.loop(a)
	return a
}

func (c *Coordinator) loop(a *actor) {
	var st *State
	loaded := false
	idle := time.NewTimer(c.idleAfter)
	defer idle.Stop()

	for {
		select {
		case req := <-a.mailbox:
			if !loaded {
				cur, err := c.loadState(a.storyID)
				if err != nil {
					req.reply <- reply{err: err}
					continue
				}
				st = cur
				loaded = true
			}
			st = c.handle(a.storyID, st, req)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleAfter)

		case <-idle.C:
			c.mu.Lock()
			if len(a.mailbox) > 0 {
				c.mu.Unlock()
				idle.Reset(c.idleAfter)
				continue
			}
			delete(c.actors, a.storyID)
			close(a.done)
			c.mu.Unlock()
			// Bounce anything that raced into the mailbox; senders retry
			// against the replacement actor.
			for {
				select {
				case req := <-a.mailbox:
					req.reply <- reply{err: errActorClosed}
				default:
					return
				}
			}
		}
	}
}

// handle runs one op against a working copy and persists before the mutation
// becomes visible. A failed save leaves the actor on its previous state, so
// an error returned to the caller really means "nothing happened".
func (c *Coordinator) handle(storyID string, st *State, req request) *State {
	next, val, err := req.op(st)
	switch {
	case errors.Is(err, errStateDropped):
		req.reply <- reply{val: val}
		return nil
	case err != nil:
		c.log.Error().Err(err).Str("storyId", storyID).Msg("coordinator op failed")
		req.reply <- reply{err: err}
		return st
	case next == nil:
		req.reply <- reply{val: val}
		return st
	}

	pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.Save(pctx, next); err != nil {
		c.log.Error().Err(err).Str("storyId", storyID).Msg("checkpoint save failed")
		req.reply <- reply{err: err}
		return st
	}
	req.reply <- reply{val: val}
	return next
}

func (c *Coordinator) loadState(storyID string) (*State, error) {
	pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	st, err := c.store.Load(pctx, storyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

// Package queue is the agent's durable offline action queue. Actions
// are delivered strictly in order, at least once; the server side is
// idempotent so duplicates are harmless.
package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/api"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// maxBackoff caps the retry delay for the head action.
const maxBackoff = 60 * time.Second

// Executor performs one queued request against the service.
type Executor interface {
	Do(ctx context.Context, method, path string, body json.RawMessage, token string) (json.RawMessage, error)
}

// TokenSource supplies access tokens for auth-required actions.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
	Clear()
}

// Queue is a durable FIFO of pending network actions. The head blocks
// the tail: nothing behind a retrying action is attempted, which keeps
// server-side ordering guarantees intact.
type Queue struct {
	store  Store
	client Executor
	tokens TokenSource

	// onResult receives the response body of every delivered action;
	// onDrop receives actions abandoned on terminal failure. Both may
	// be nil.
	onResult func(action domain.QueuedAction, body json.RawMessage)
	onDrop   func(action domain.QueuedAction, err error)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	actions  []domain.QueuedAction
	draining bool
	rerun    bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithResultHandler registers a callback for delivered actions.
func WithResultHandler(fn func(action domain.QueuedAction, body json.RawMessage)) Option {
	return func(q *Queue) { q.onResult = fn }
}

// WithDropHandler registers a callback for abandoned actions.
func WithDropHandler(fn func(action domain.QueuedAction, err error)) Option {
	return func(q *Queue) { q.onDrop = fn }
}

// New creates a queue, loading any actions persisted by a previous run.
func New(store Store, client Executor, tokens TokenSource, opts ...Option) (*Queue, error) {
	actions, err := store.Load()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		store:   store,
		client:  client,
		tokens:  tokens,
		actions: actions,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(q)
	}
	if len(actions) > 0 {
		log.Printf("INFO: queue resumed with %d pending action(s)", len(actions))
	}
	return q, nil
}

// Enqueue persists a new action at the tail, then kicks an async drain.
// The action survives a crash the moment Enqueue returns.
func (q *Queue) Enqueue(action domain.QueuedAction) error {
	if action.ActionID == "" {
		action.ActionID = "act_" + uuid.New().String()[:8]
	}
	if action.EnqueuedAt.IsZero() {
		action.EnqueuedAt = q.now()
	}
	if action.NextAttemptAt.IsZero() {
		action.NextAttemptAt = action.EnqueuedAt
	}

	if err := q.push(action); err != nil {
		return err
	}

	go func() {
		if err := q.Process(context.Background()); err != nil {
			log.Printf("WARN: queue drain stopped: %v", err)
		}
	}()
	return nil
}

// push appends the action and persists before it becomes visible.
func (q *Queue) push(action domain.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := append(append([]domain.QueuedAction{}, q.actions...), action)
	if err := q.store.Save(next); err != nil {
		return err
	}
	q.actions = next
	return nil
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Process drains the queue until it is empty or the context ends. Only
// one drain runs at a time; a call that finds one running flags a rerun
// and returns immediately.
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.rerun = true
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	q.rerun = false
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		action, ok := q.head()
		if !ok {
			q.mu.Lock()
			if q.rerun {
				q.rerun = false
				q.mu.Unlock()
				continue
			}
			q.mu.Unlock()
			return nil
		}

		if wait := action.NextAttemptAt.Sub(q.now()); wait > 0 {
			if err := q.sleep(ctx, wait); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := q.attempt(ctx, action); err != nil {
			return err
		}
	}
}

// attempt delivers the head action once, handling the 401 refresh path
// and classifying the outcome. Returns an error only when the drain
// itself must stop (context canceled, persistence failure).
func (q *Queue) attempt(ctx context.Context, action domain.QueuedAction) error {
	body, err := q.execute(ctx, action, false)
	if err == nil {
		if popErr := q.pop(action.ActionID); popErr != nil {
			return popErr
		}
		if q.onResult != nil {
			q.onResult(action, body)
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	code := api.Classify(err)

	if code == domain.CodeAuth && action.RequiresAuth && action.TokenOverride == "" {
		// One refresh, one immediate retry. A second auth failure
		// means the credential chain is dead.
		body, err = q.execute(ctx, action, true)
		if err == nil {
			if popErr := q.pop(action.ActionID); popErr != nil {
				return popErr
			}
			if q.onResult != nil {
				q.onResult(action, body)
			}
			return nil
		}
		code = api.Classify(err)
		if code == domain.CodeAuth {
			log.Printf("ERROR: action %s (%s) failed auth after refresh, dropping: %v", action.ActionID, action.Description, err)
			q.tokens.Clear()
			return q.drop(action, err)
		}
	}

	switch code {
	case domain.CodeNetwork, domain.CodeOverload:
		return q.reschedule(action)
	default:
		// Validation, conflict, not found: retrying can never succeed.
		log.Printf("ERROR: action %s (%s) failed terminally, dropping: %v", action.ActionID, action.Description, err)
		return q.drop(action, err)
	}
}

// execute performs the HTTP call, resolving the token first when the
// action needs one.
func (q *Queue) execute(ctx context.Context, action domain.QueuedAction, forceRefresh bool) (json.RawMessage, error) {
	token := ""
	if action.RequiresAuth {
		switch {
		case action.TokenOverride != "":
			token = action.TokenOverride
		case forceRefresh:
			var err error
			token, err = q.tokens.ForceRefresh(ctx)
			if err != nil {
				return nil, err
			}
		default:
			var err error
			token, err = q.tokens.EnsureValid(ctx)
			if err != nil {
				return nil, err
			}
		}
	}
	return q.client.Do(ctx, action.Method, action.Path, action.Body, token)
}

// reschedule bumps the head's attempt counter and pushes its next try
// out by min(60s, 2^attempts seconds).
func (q *Queue) reschedule(action domain.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.actions {
		if q.actions[i].ActionID != action.ActionID {
			continue
		}
		q.actions[i].Attempts++
		delay := backoff(q.actions[i].Attempts)
		q.actions[i].NextAttemptAt = q.now().Add(delay)
		log.Printf("WARN: action %s (%s) attempt %d failed, next try in %s", action.ActionID, action.Description, q.actions[i].Attempts, delay)
		return q.store.Save(q.actions)
	}
	return nil
}

func (q *Queue) pop(actionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.actions {
		if q.actions[i].ActionID == actionID {
			q.actions = append(q.actions[:i:i], q.actions[i+1:]...)
			return q.store.Save(q.actions)
		}
	}
	return nil
}

func (q *Queue) drop(action domain.QueuedAction, cause error) error {
	if err := q.pop(action.ActionID); err != nil {
		return err
	}
	if q.onDrop != nil {
		q.onDrop(action, cause)
	}
	return nil
}

func (q *Queue) head() (domain.QueuedAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return domain.QueuedAction{}, false
	}
	return q.actions[0], true
}

// backoff computes the retry delay after the given number of failed
// attempts: 2s, 4s, 8s, ... capped at 60s.
func backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 6 {
		// 2^6 already exceeds the cap, avoid overflow on huge counts.
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

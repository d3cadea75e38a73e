package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/api"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/pause"
)

// APIClient is the subset of the service API the driver calls directly.
// Everything else travels through the queue.
type APIClient interface {
	StartSession(ctx context.Context, token string) (*api.StartSessionResponse, error)
	Heartbeat(ctx context.Context, token, sessionID, activity string) (*api.HeartbeatResponse, error)
	GetPauses(ctx context.Context, token, sessionID string) (*domain.PauseSnapshot, error)
}

// Tokens supplies access tokens for direct calls.
type Tokens interface {
	EnsureValid(ctx context.Context) (string, error)
}

// ActionQueue accepts actions for durable delivery.
type ActionQueue interface {
	Enqueue(action domain.QueuedAction) error
}

// heartbeatActivity is the activity label the agent reports. The CLI
// agent has no input tracking, so every beat reports the same label.
const heartbeatActivity = "active"

// PromptSink receives triggered presence prompts, typically a UI layer.
// Called from the dispatcher goroutine, one prompt at a time.
type PromptSink interface {
	PromptTriggered(prompt domain.PresencePrompt)
}

// Driver runs the agent's heartbeat loop and routes pause and presence
// operations between the local state, the queue and the server.
type Driver struct {
	client APIClient
	tokens Tokens
	queue  ActionQueue
	state  *State
	sink   PromptSink

	interval time.Duration
	prompts  chan domain.PresencePrompt
	now      func() time.Time
}

// NewDriver creates a driver. The sink may be nil when no UI is
// attached; prompts are then only kept on the state.
func NewDriver(client APIClient, tokens Tokens, queue ActionQueue, state *State, sink PromptSink, interval time.Duration) *Driver {
	return &Driver{
		client:   client,
		tokens:   tokens,
		queue:    queue,
		state:    state,
		sink:     sink,
		interval: interval,
		prompts:  make(chan domain.PresencePrompt, 16),
		now:      time.Now,
	}
}

// SetQueue attaches the action queue. The queue's result handler needs
// the driver, so the two are wired after construction.
func (d *Driver) SetQueue(queue ActionQueue) {
	d.queue = queue
}

// Start syncs the session, then runs the heartbeat loop until the
// context ends.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.Sync(ctx); err != nil {
		return err
	}

	go d.dispatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.HeartbeatOnce(ctx); err != nil {
				log.Printf("WARN: heartbeat failed: %v", err)
			}
		}
	}
}

// Sync starts (or resumes) the session and replaces local pause state
// with the server's authoritative snapshot.
func (d *Driver) Sync(ctx context.Context) error {
	token, err := d.tokens.EnsureValid(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	resp, err := d.client.StartSession(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	d.state.SetSession(&resp.Session)
	if resp.Created {
		log.Printf("INFO: session %s started", resp.Session.SessionID)
	} else {
		log.Printf("INFO: session %s resumed", resp.Session.SessionID)
	}

	snapshot, err := d.client.GetPauses(ctx, token, resp.Session.SessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch pause snapshot: %w", err)
	}
	d.state.ResetPauses(snapshot, d.now())
	return nil
}

// HeartbeatOnce reports liveness once. Direct submit; a retryable
// failure falls back to the queue so the report is not lost. A returned
// prompt is recorded and handed to the dispatcher.
func (d *Driver) HeartbeatOnce(ctx context.Context) error {
	sessionID := d.state.SessionID()
	if sessionID == "" {
		return nil
	}

	token, err := d.tokens.EnsureValid(ctx)
	if err == nil {
		var resp *api.HeartbeatResponse
		resp, err = d.client.Heartbeat(ctx, token, sessionID, heartbeatActivity)
		if err == nil {
			d.handlePrompt(resp.PresencePrompt)
			return nil
		}
	}

	if !retryable(err) {
		return err
	}

	body, mErr := json.Marshal(map[string]string{"session_id": sessionID, "activity": heartbeatActivity})
	if mErr != nil {
		return mErr
	}
	if qErr := d.queue.Enqueue(domain.QueuedAction{
		Method:       http.MethodPost,
		Path:         "/heartbeat",
		Body:         body,
		RequiresAuth: true,
		Description:  "heartbeat",
	}); qErr != nil {
		return qErr
	}
	log.Printf("WARN: heartbeat queued after failure: %v", err)
	return nil
}

// ConfirmPresence answers the pending prompt through the queue.
// Confirmation is idempotent server-side, so at-least-once delivery is
// safe.
func (d *Driver) ConfirmPresence(promptID string) error {
	body, err := json.Marshal(map[string]string{"prompt_id": promptID})
	if err != nil {
		return err
	}
	if err := d.queue.Enqueue(domain.QueuedAction{
		Method:       http.MethodPost,
		Path:         "/presence/respond",
		Body:         body,
		RequiresAuth: true,
		Description:  "confirm presence " + promptID,
	}); err != nil {
		return err
	}
	d.state.SetPrompt(nil)
	return nil
}

// StartPause opens a pause: applied optimistically to local state, then
// queued for delivery.
func (d *Driver) StartPause(kind domain.PauseKind) error {
	if !kind.Valid() {
		return domain.NewError(domain.CodeValidation, "unknown pause kind %q", kind)
	}
	sessionID := d.state.SessionID()
	if sessionID == "" {
		return domain.NewError(domain.CodeConflict, "no active session")
	}

	d.state.ApplyPause(pause.Event{
		Action: domain.PauseActionStarted,
		Pause: domain.Pause{
			SessionID: sessionID,
			Kind:      kind,
			Sequence:  d.state.NextPauseSequence(kind),
			StartedAt: d.now(),
		},
	}, d.now())

	return d.enqueuePause(sessionID, kind, "start")
}

// EndPause closes the open pause of the kind, optimistically then
// through the queue.
func (d *Driver) EndPause(kind domain.PauseKind) error {
	if !kind.Valid() {
		return domain.NewError(domain.CodeValidation, "unknown pause kind %q", kind)
	}
	sessionID := d.state.SessionID()
	if sessionID == "" {
		return domain.NewError(domain.CodeConflict, "no active session")
	}

	open := d.state.pausesOpen(kind)
	if open != nil {
		now := d.now()
		d.state.ApplyPause(pause.Event{
			Action: domain.PauseActionEnded,
			Pause: domain.Pause{
				SessionID: sessionID,
				Kind:      kind,
				Sequence:  open.Sequence,
				StartedAt: open.StartedAt,
				EndedAt:   &now,
			},
		}, now)
	}

	return d.enqueuePause(sessionID, kind, "end")
}

// EndSession queues the session end. Local state clears when the server
// acknowledges through the result handler.
func (d *Driver) EndSession() error {
	sessionID := d.state.SessionID()
	if sessionID == "" {
		return domain.NewError(domain.CodeConflict, "no active session")
	}
	return d.queue.Enqueue(domain.QueuedAction{
		Method:       http.MethodPost,
		Path:         "/v1/sessions/" + sessionID + "/end",
		Body:         json.RawMessage(`{}`),
		RequiresAuth: true,
		Description:  "end session " + sessionID,
	})
}

// HandleQueueResult folds delivered queue responses back into state.
// Wired as the queue's result handler.
func (d *Driver) HandleQueueResult(action domain.QueuedAction, body json.RawMessage) {
	switch {
	case strings.HasPrefix(action.Path, "/pauses/"):
		var resp struct {
			Action domain.PauseAction `json:"action"`
			Pause  domain.Pause       `json:"pause"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			log.Printf("WARN: undecodable pause response for %s: %v", action.ActionID, err)
			return
		}
		// Authoritative record; usually lands on the same (kind,
		// sequence) key as the optimistic application, and evicts it
		// when the local sequence guess was wrong.
		d.state.ReconcilePause(pause.Event{Action: resp.Action, Pause: resp.Pause}, d.now())

	case strings.HasSuffix(action.Path, "/end") && strings.HasPrefix(action.Path, "/v1/sessions/"):
		d.state.ClearSession()
		log.Printf("INFO: session ended, local state cleared")

	case action.Path == "/heartbeat":
		var resp api.HeartbeatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return
		}
		d.handlePrompt(resp.PresencePrompt)
	}
}

// HandleQueueDrop logs abandoned actions so a misbehaving request is
// visible. Wired as the queue's drop handler.
func (d *Driver) HandleQueueDrop(action domain.QueuedAction, err error) {
	log.Printf("ERROR: abandoned %s (%s): %v", action.ActionID, action.Description, err)
}

func (d *Driver) enqueuePause(sessionID string, kind domain.PauseKind, op string) error {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return err
	}
	return d.queue.Enqueue(domain.QueuedAction{
		Method:       http.MethodPost,
		Path:         fmt.Sprintf("/pauses/%s/%s", kind, op),
		Body:         body,
		RequiresAuth: true,
		Description:  fmt.Sprintf("%s %s", op, kind),
	})
}

// handlePrompt records a triggered prompt and hands it to the
// dispatcher without blocking the heartbeat loop.
func (d *Driver) handlePrompt(prompt *domain.PresencePrompt) {
	if prompt == nil {
		return
	}
	d.state.SetPrompt(prompt)
	select {
	case d.prompts <- *prompt:
	default:
		// The sink is not keeping up; the prompt stays on the state
		// and resurfaces with the next heartbeat.
		log.Printf("WARN: prompt channel full, dropping notification for %s", prompt.PromptID)
	}
}

// dispatch forwards prompts to the sink, one at a time.
func (d *Driver) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case prompt := <-d.prompts:
			if d.sink != nil {
				d.sink.PromptTriggered(prompt)
			}
		}
	}
}

func retryable(err error) bool {
	code := api.Classify(err)
	return code == domain.CodeNetwork || code == domain.CodeOverload
}

// pausesOpen returns the open pause of the kind from the state.
func (s *State) pausesOpen(kind domain.PauseKind) *domain.Pause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses.Open(kind)
}

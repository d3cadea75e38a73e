package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/api"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

type fakeAPI struct {
	session    domain.Session
	created    bool
	snapshot   domain.PauseSnapshot
	prompt     *domain.PresencePrompt
	heartbeats int
	hbErr      error
}

func (f *fakeAPI) StartSession(ctx context.Context, token string) (*api.StartSessionResponse, error) {
	return &api.StartSessionResponse{Session: f.session, Created: f.created}, nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, token, sessionID, activity string) (*api.HeartbeatResponse, error) {
	f.heartbeats++
	if f.hbErr != nil {
		return nil, f.hbErr
	}
	return &api.HeartbeatResponse{Status: "ok", PresencePrompt: f.prompt}, nil
}

func (f *fakeAPI) GetPauses(ctx context.Context, token, sessionID string) (*domain.PauseSnapshot, error) {
	return &f.snapshot, nil
}

type staticTokens struct{}

func (staticTokens) EnsureValid(ctx context.Context) (string, error) { return "tok", nil }

type captureQueue struct {
	actions []domain.QueuedAction
}

func (q *captureQueue) Enqueue(action domain.QueuedAction) error {
	q.actions = append(q.actions, action)
	return nil
}

func newTestDriver(t *testing.T, client *fakeAPI) (*Driver, *State, *captureQueue) {
	t.Helper()
	state := NewState()
	q := &captureQueue{}
	d := NewDriver(client, staticTokens{}, q, state, nil, time.Minute)
	return d, state, q
}

func TestSyncLoadsSessionAndPauses(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lunch := domain.Pause{Kind: domain.PauseKindLunch, Sequence: 1, StartedAt: started.Add(3 * time.Hour)}
	client := &fakeAPI{
		session:  domain.Session{SessionID: "ses_1", WorkerID: "w1", Status: domain.SessionStatusActive, StartedAt: started},
		created:  true,
		snapshot: domain.PauseSnapshot{Current: &lunch},
	}
	d, state, _ := newTestDriver(t, client)

	if err := d.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if state.SessionID() != "ses_1" {
		t.Fatalf("expected session ses_1, got %q", state.SessionID())
	}
	if !state.Paused() {
		t.Fatalf("snapshot with an open lunch must leave the state paused")
	}
}

func TestHeartbeatHandsPromptToSink(t *testing.T) {
	triggered := time.Now().UTC()
	client := &fakeAPI{
		session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive},
		prompt: &domain.PresencePrompt{
			PromptID:    "prm_1",
			SessionID:   "ses_1",
			Status:      domain.PromptStatusTriggered,
			ScheduledAt: triggered,
			TriggeredAt: &triggered,
		},
	}
	d, state, _ := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.HeartbeatOnce(context.Background()); err != nil {
		t.Fatalf("HeartbeatOnce failed: %v", err)
	}

	if got := state.Prompt(); got == nil || got.PromptID != "prm_1" {
		t.Fatalf("expected the prompt recorded on state, got %+v", got)
	}
	select {
	case prompt := <-d.prompts:
		if prompt.PromptID != "prm_1" {
			t.Fatalf("dispatcher got the wrong prompt: %+v", prompt)
		}
	default:
		t.Fatalf("prompt never reached the dispatch channel")
	}
}

func TestHeartbeatFallsBackToQueue(t *testing.T) {
	client := &fakeAPI{
		session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive},
		hbErr:   &api.Error{Status: http.StatusServiceUnavailable, Message: "overloaded"},
	}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.HeartbeatOnce(context.Background()); err != nil {
		t.Fatalf("retryable heartbeat failure must queue, not error: %v", err)
	}
	if len(q.actions) != 1 || q.actions[0].Path != "/heartbeat" {
		t.Fatalf("expected a queued heartbeat, got %+v", q.actions)
	}
}

func TestHeartbeatTerminalFailureSurfaces(t *testing.T) {
	client := &fakeAPI{
		session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive},
		hbErr:   &api.Error{Status: http.StatusConflict, Message: "session already ended"},
	}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.HeartbeatOnce(context.Background()); err == nil {
		t.Fatalf("expected the conflict to surface")
	}
	if len(q.actions) != 0 {
		t.Fatalf("terminal failures must not be queued: %+v", q.actions)
	}
}

func TestPauseRoundTripThroughQueue(t *testing.T) {
	client := &fakeAPI{session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive}}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.StartPause(domain.PauseKindBreak); err != nil {
		t.Fatalf("StartPause failed: %v", err)
	}
	if !state.Paused() {
		t.Fatalf("optimistic start must mark the state paused")
	}
	if len(q.actions) != 1 || q.actions[0].Path != "/pauses/break/start" {
		t.Fatalf("unexpected queued action: %+v", q.actions)
	}

	// The server acknowledges with the authoritative record; it lands
	// on the same (kind, sequence) key.
	started := state.Pauses().Current.StartedAt
	ack, _ := json.Marshal(map[string]interface{}{
		"action": domain.PauseActionStarted,
		"pause": domain.Pause{
			PauseID:   "pse_1",
			SessionID: "ses_1",
			Kind:      domain.PauseKindBreak,
			Sequence:  1,
			StartedAt: started,
		},
	})
	d.HandleQueueResult(q.actions[0], ack)

	snap := state.Pauses()
	if snap.Current == nil || snap.Current.PauseID != "pse_1" {
		t.Fatalf("acknowledgement did not replace the optimistic record: %+v", snap.Current)
	}
	if len(snap.History) != 0 {
		t.Fatalf("acknowledgement duplicated the pause: %+v", snap.History)
	}

	if err := d.EndPause(domain.PauseKindBreak); err != nil {
		t.Fatalf("EndPause failed: %v", err)
	}
	if state.Paused() {
		t.Fatalf("optimistic end must clear the open pause")
	}
	if len(q.actions) != 2 || q.actions[1].Path != "/pauses/break/end" {
		t.Fatalf("unexpected queued actions: %+v", q.actions)
	}
}

func TestPauseAckEvictsWrongSequenceGuess(t *testing.T) {
	client := &fakeAPI{session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive}}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.StartPause(domain.PauseKindBreak); err != nil {
		t.Fatalf("StartPause failed: %v", err)
	}

	// The server had already recorded breaks this session, so the ack
	// carries sequence 3 while the local guess was 1.
	started := state.Pauses().Current.StartedAt
	ack, _ := json.Marshal(map[string]interface{}{
		"action": domain.PauseActionStarted,
		"pause": domain.Pause{
			PauseID:   "pse_3",
			SessionID: "ses_1",
			Kind:      domain.PauseKindBreak,
			Sequence:  3,
			StartedAt: started,
		},
	})
	d.HandleQueueResult(q.actions[0], ack)

	snap := state.Pauses()
	if snap.Current == nil || snap.Current.Sequence != 3 {
		t.Fatalf("expected the server sequence to win, got %+v", snap.Current)
	}
	if len(snap.History) != 0 {
		t.Fatalf("guessed pause must not linger, got %+v", snap.History)
	}
	if got := state.NextPauseSequence(domain.PauseKindBreak); got != 4 {
		t.Fatalf("next sequence must follow the server's, got %d", got)
	}
}

func TestEndSessionClearsStateOnAck(t *testing.T) {
	client := &fakeAPI{session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive}}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)

	if err := d.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if state.SessionID() != "ses_1" {
		t.Fatalf("session must stay until the server acknowledges")
	}

	d.HandleQueueResult(q.actions[0], json.RawMessage(`{"session":{"session_id":"ses_1","status":"ENDED"}}`))
	if state.SessionID() != "" {
		t.Fatalf("acknowledged end must clear the session")
	}
}

func TestConfirmPresenceClearsPrompt(t *testing.T) {
	client := &fakeAPI{session: domain.Session{SessionID: "ses_1", Status: domain.SessionStatusActive}}
	d, state, q := newTestDriver(t, client)
	state.SetSession(&client.session)
	state.SetPrompt(&domain.PresencePrompt{PromptID: "prm_1", Status: domain.PromptStatusTriggered})

	if err := d.ConfirmPresence("prm_1"); err != nil {
		t.Fatalf("ConfirmPresence failed: %v", err)
	}
	if state.Prompt() != nil {
		t.Fatalf("confirm must clear the pending prompt")
	}
	if len(q.actions) != 1 || q.actions[0].Path != "/presence/respond" {
		t.Fatalf("unexpected queued action: %+v", q.actions)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content := "server_url: http://localhost:8080\nworker_id: w1\ndevice_id: d1\nstate_dir: " + dir + "\nheartbeat_interval: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if time.Duration(cfg.HeartbeatInterval) != 30*time.Second {
		t.Fatalf("expected 30s interval, got %s", time.Duration(cfg.HeartbeatInterval))
	}
	if cfg.QueuePath() != filepath.Join(dir, "queue.json") {
		t.Fatalf("unexpected queue path %s", cfg.QueuePath())
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}

	if err := os.WriteFile(path, []byte("worker_id: w1\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected an error when server_url is missing")
	}
}

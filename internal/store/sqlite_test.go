package store

import (
	"context"
	"testing"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func activeSession(t *testing.T, store *SQLiteStore, sessionID, workerID string, startedAt time.Time) {
	t.Helper()
	sess := &domain.Session{
		SessionID: sessionID,
		WorkerID:  workerID,
		Status:    domain.SessionStatusActive,
		StartedAt: startedAt,
	}
	if err := store.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestSQLiteStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Now().UTC().Truncate(time.Second)
	activeSession(t, store, "ses_1", "w1", start)

	got, err := store.GetSession(ctx, "ses_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.WorkerID != "w1" || got.Status != domain.SessionStatusActive {
		t.Fatalf("unexpected session: %+v", got)
	}

	active, err := store.GetActiveSessionForWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("GetActiveSessionForWorker failed: %v", err)
	}
	if active == nil || active.SessionID != "ses_1" {
		t.Fatalf("unexpected active session: %+v", active)
	}

	ended, err := store.EndSession(ctx, "ses_1", start.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if !ended {
		t.Fatalf("expected first EndSession to report success")
	}

	// Second end is a no-op; the service layer turns this into a conflict.
	ended, err = store.EndSession(ctx, "ses_1", start.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if ended {
		t.Fatalf("expected second EndSession to report already ended")
	}

	active, err = store.GetActiveSessionForWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("GetActiveSessionForWorker failed: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active session, got %+v", active)
	}
}

func TestSQLiteStorePromptTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Now().UTC().Truncate(time.Second)
	activeSession(t, store, "ses_1", "w1", start)

	prompts := []domain.PresencePrompt{
		{PromptID: "prm_1", SessionID: "ses_1", Status: domain.PromptStatusScheduled, ScheduledAt: start.Add(time.Hour)},
		{PromptID: "prm_2", SessionID: "ses_1", Status: domain.PromptStatusScheduled, ScheduledAt: start.Add(2 * time.Hour)},
	}
	if err := store.CreatePrompts(ctx, prompts); err != nil {
		t.Fatalf("CreatePrompts failed: %v", err)
	}

	due, err := store.GetDuePrompt(ctx, "ses_1", start.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("GetDuePrompt failed: %v", err)
	}
	if due == nil || due.PromptID != "prm_1" {
		t.Fatalf("unexpected due prompt: %+v", due)
	}

	triggeredAt := start.Add(90 * time.Minute)
	ok, err := store.MarkPromptTriggered(ctx, "prm_1", triggeredAt, triggeredAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkPromptTriggered failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected trigger to succeed")
	}

	// A triggered prompt cannot be triggered again.
	ok, err = store.MarkPromptTriggered(ctx, "prm_1", triggeredAt, triggeredAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkPromptTriggered failed: %v", err)
	}
	if ok {
		t.Fatalf("expected re-trigger to be rejected")
	}

	triggered, err := store.GetTriggeredPrompt(ctx, "ses_1")
	if err != nil {
		t.Fatalf("GetTriggeredPrompt failed: %v", err)
	}
	if triggered == nil || triggered.PromptID != "prm_1" {
		t.Fatalf("unexpected triggered prompt: %+v", triggered)
	}

	expired, err := store.ListExpiredPrompts(ctx, triggeredAt.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListExpiredPrompts failed: %v", err)
	}
	if len(expired) != 1 || expired[0].PromptID != "prm_1" {
		t.Fatalf("unexpected expired prompts: %+v", expired)
	}

	ok, err = store.MarkPromptMissed(ctx, "prm_1")
	if err != nil {
		t.Fatalf("MarkPromptMissed failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected miss to succeed")
	}

	// Terminal states never move backward.
	ok, err = store.MarkPromptConfirmed(ctx, "prm_1", triggeredAt.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("MarkPromptConfirmed failed: %v", err)
	}
	if ok {
		t.Fatalf("expected confirm of missed prompt to be rejected")
	}
}

func TestSQLiteStoreDelayedPromptStillDue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Now().UTC().Truncate(time.Second)
	activeSession(t, store, "ses_1", "w1", start)

	prompts := []domain.PresencePrompt{
		{PromptID: "prm_1", SessionID: "ses_1", Status: domain.PromptStatusScheduled, ScheduledAt: start},
	}
	if err := store.CreatePrompts(ctx, prompts); err != nil {
		t.Fatalf("CreatePrompts failed: %v", err)
	}

	pushed := start.Add(15 * time.Minute)
	ok, err := store.MarkPromptDelayed(ctx, "prm_1", pushed)
	if err != nil {
		t.Fatalf("MarkPromptDelayed failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected delay to succeed")
	}

	due, err := store.GetDuePrompt(ctx, "ses_1", start.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetDuePrompt failed: %v", err)
	}
	if due != nil {
		t.Fatalf("expected no due prompt before pushed slot, got %+v", due)
	}

	due, err = store.GetDuePrompt(ctx, "ses_1", pushed.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetDuePrompt failed: %v", err)
	}
	if due == nil || due.PromptID != "prm_1" || due.Status != domain.PromptStatusDelayed {
		t.Fatalf("expected delayed prompt to come due again, got %+v", due)
	}
}

func TestSQLiteStorePauseSequencesAndEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Now().UTC().Truncate(time.Second)
	activeSession(t, store, "ses_1", "w1", start)

	seq, err := store.NextPauseSequence(ctx, "ses_1", domain.PauseKindBreak)
	if err != nil {
		t.Fatalf("NextPauseSequence failed: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected first sequence 1, got %d", seq)
	}

	pause := &domain.Pause{
		PauseID:   "pse_1",
		SessionID: "ses_1",
		Kind:      domain.PauseKindBreak,
		Sequence:  seq,
		StartedAt: start.Add(time.Hour),
	}
	if err := store.CreatePause(ctx, pause); err != nil {
		t.Fatalf("CreatePause failed: %v", err)
	}

	open, err := store.GetOpenPause(ctx, "ses_1", domain.PauseKindBreak)
	if err != nil {
		t.Fatalf("GetOpenPause failed: %v", err)
	}
	if open == nil || open.PauseID != "pse_1" {
		t.Fatalf("unexpected open pause: %+v", open)
	}

	if open, err = store.GetOpenPause(ctx, "ses_1", domain.PauseKindLunch); err != nil {
		t.Fatalf("GetOpenPause failed: %v", err)
	} else if open != nil {
		t.Fatalf("expected no open lunch, got %+v", open)
	}

	ok, err := store.EndPause(ctx, "pse_1", start.Add(time.Hour+5*time.Minute), 5)
	if err != nil {
		t.Fatalf("EndPause failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected end to succeed")
	}

	ok, err = store.EndPause(ctx, "pse_1", start.Add(2*time.Hour), 60)
	if err != nil {
		t.Fatalf("EndPause failed: %v", err)
	}
	if ok {
		t.Fatalf("expected second end to report already ended")
	}

	last, err := store.GetLastEndedPause(ctx, "ses_1", domain.PauseKindBreak)
	if err != nil {
		t.Fatalf("GetLastEndedPause failed: %v", err)
	}
	if last == nil || last.DurationMinutes == nil || *last.DurationMinutes != 5 {
		t.Fatalf("unexpected last ended pause: %+v", last)
	}

	seq, err = store.NextPauseSequence(ctx, "ses_1", domain.PauseKindBreak)
	if err != nil {
		t.Fatalf("NextPauseSequence failed: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected next sequence 2, got %d", seq)
	}
}

func TestSQLiteStoreCredentialRotation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	first := &domain.Credential{
		AccessToken:           "at_1",
		RefreshToken:          "rt_1",
		WorkerID:              "w1",
		DeviceID:              "dev1",
		Scope:                 "attendance",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshTokenExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	if err := store.CreateCredential(ctx, first); err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}

	got, err := store.GetCredentialByAccessToken(ctx, "at_1")
	if err != nil {
		t.Fatalf("GetCredentialByAccessToken failed: %v", err)
	}
	if got == nil || got.WorkerID != "w1" || got.Scope != "attendance" {
		t.Fatalf("unexpected credential: %+v", got)
	}

	second := &domain.Credential{
		AccessToken:           "at_2",
		RefreshToken:          "rt_2",
		WorkerID:              "w1",
		Scope:                 "attendance",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshTokenExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	rotated, err := store.RotateCredential(ctx, "rt_1", second)
	if err != nil {
		t.Fatalf("RotateCredential failed: %v", err)
	}
	if !rotated {
		t.Fatalf("expected rotation to succeed")
	}

	// The refresh token is single-use: replaying it must fail.
	rotated, err = store.RotateCredential(ctx, "rt_1", &domain.Credential{
		AccessToken:           "at_3",
		RefreshToken:          "rt_3",
		WorkerID:              "w1",
		Scope:                 "attendance",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshTokenExpiresAt: now.Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("RotateCredential failed: %v", err)
	}
	if rotated {
		t.Fatalf("expected replayed refresh token to be rejected")
	}

	if got, err = store.GetCredentialByAccessToken(ctx, "at_1"); err != nil {
		t.Fatalf("GetCredentialByAccessToken failed: %v", err)
	} else if got != nil {
		t.Fatalf("expected old access token to be invalidated, got %+v", got)
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			last_seen_at DATETIME,
			last_activity TEXT,
			missed_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_worker ON sessions(worker_id, status)`,
		`CREATE TABLE IF NOT EXISTS presence_prompts (
			prompt_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			status TEXT NOT NULL,
			scheduled_at DATETIME NOT NULL,
			triggered_at DATETIME,
			expires_at DATETIME,
			responded_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_session ON presence_prompts(session_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_status ON presence_prompts(status, expires_at)`,
		`CREATE TABLE IF NOT EXISTS pauses (
			pause_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			duration_minutes INTEGER,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id),
			UNIQUE (session_id, kind, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pauses_session ON pauses(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			access_token TEXT PRIMARY KEY,
			refresh_token TEXT NOT NULL UNIQUE,
			worker_id TEXT NOT NULL,
			device_id TEXT,
			scope TEXT NOT NULL,
			access_expires_at DATETIME NOT NULL,
			refresh_expires_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_worker ON credentials(worker_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, worker_id, status, started_at, last_seen_at, missed_count) VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.WorkerID, session.Status, session.StartedAt, session.LastSeenAt, session.MissedCount)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, worker_id, status, started_at, ended_at, last_seen_at, last_activity, missed_count FROM sessions WHERE session_id = ?`,
		sessionID)
	return scanSession(row)
}

// GetActiveSessionForWorker retrieves the worker's active session, if any.
func (s *SQLiteStore) GetActiveSessionForWorker(ctx context.Context, workerID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, worker_id, status, started_at, ended_at, last_seen_at, last_activity, missed_count
		 FROM sessions WHERE worker_id = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		workerID, domain.SessionStatusActive)
	return scanSession(row)
}

// ListSessions lists sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	query := `SELECT session_id, worker_id, status, started_at, ended_at, last_seen_at, last_activity, missed_count FROM sessions ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// EndSession marks a session ended. Returns false when the session was
// already ended, so the caller can report a conflict.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ? AND status = ?`,
		domain.SessionStatusEnded, endedAt, sessionID, domain.SessionStatusActive)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TouchSession updates the session's last-seen timestamp and, when the
// report carries one, the last observed activity.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID, activity string, seenAt time.Time) error {
	if activity == "" {
		_, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET last_seen_at = ? WHERE session_id = ?`,
			seenAt, sessionID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ?, last_activity = ? WHERE session_id = ?`,
		seenAt, activity, sessionID)
	return err
}

// IncrementMissedCount bumps the session's missed-prompt counter.
func (s *SQLiteStore) IncrementMissedCount(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET missed_count = missed_count + 1 WHERE session_id = ?`,
		sessionID)
	return err
}

// CreatePrompts inserts a batch of scheduled prompts.
func (s *SQLiteStore) CreatePrompts(ctx context.Context, prompts []domain.PresencePrompt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range prompts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO presence_prompts (prompt_id, session_id, status, scheduled_at) VALUES (?, ?, ?, ?)`,
			p.PromptID, p.SessionID, p.Status, p.ScheduledAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPrompt retrieves a prompt by ID.
func (s *SQLiteStore) GetPrompt(ctx context.Context, promptID string) (*domain.PresencePrompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT prompt_id, session_id, status, scheduled_at, triggered_at, expires_at, responded_at
		 FROM presence_prompts WHERE prompt_id = ?`, promptID)
	return scanPrompt(row)
}

// ListPrompts lists all prompts of a session, earliest slot first.
func (s *SQLiteStore) ListPrompts(ctx context.Context, sessionID string) ([]domain.PresencePrompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_id, session_id, status, scheduled_at, triggered_at, expires_at, responded_at
		 FROM presence_prompts WHERE session_id = ? ORDER BY scheduled_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []domain.PresencePrompt
	for rows.Next() {
		p, err := scanPromptRows(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// GetDuePrompt returns the earliest schedulable prompt whose slot has
// arrived, or nil.
func (s *SQLiteStore) GetDuePrompt(ctx context.Context, sessionID string, now time.Time) (*domain.PresencePrompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT prompt_id, session_id, status, scheduled_at, triggered_at, expires_at, responded_at
		 FROM presence_prompts
		 WHERE session_id = ? AND status IN (?, ?) AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC LIMIT 1`,
		sessionID, domain.PromptStatusScheduled, domain.PromptStatusDelayed, now)
	return scanPrompt(row)
}

// GetTriggeredPrompt returns the session's currently triggered prompt, or nil.
func (s *SQLiteStore) GetTriggeredPrompt(ctx context.Context, sessionID string) (*domain.PresencePrompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT prompt_id, session_id, status, scheduled_at, triggered_at, expires_at, responded_at
		 FROM presence_prompts WHERE session_id = ? AND status = ? LIMIT 1`,
		sessionID, domain.PromptStatusTriggered)
	return scanPrompt(row)
}

// MarkPromptTriggered transitions a schedulable prompt to TRIGGERED.
func (s *SQLiteStore) MarkPromptTriggered(ctx context.Context, promptID string, triggeredAt, expiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presence_prompts SET status = ?, triggered_at = ?, expires_at = ? WHERE prompt_id = ? AND status IN (?, ?)`,
		domain.PromptStatusTriggered, triggeredAt, expiresAt, promptID,
		domain.PromptStatusScheduled, domain.PromptStatusDelayed)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkPromptDelayed pushes a schedulable prompt's slot forward.
func (s *SQLiteStore) MarkPromptDelayed(ctx context.Context, promptID string, scheduledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presence_prompts SET status = ?, scheduled_at = ? WHERE prompt_id = ? AND status IN (?, ?)`,
		domain.PromptStatusDelayed, scheduledAt, promptID,
		domain.PromptStatusScheduled, domain.PromptStatusDelayed)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkPromptConfirmed transitions a triggered prompt to CONFIRMED.
func (s *SQLiteStore) MarkPromptConfirmed(ctx context.Context, promptID string, respondedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presence_prompts SET status = ?, responded_at = ? WHERE prompt_id = ? AND status = ?`,
		domain.PromptStatusConfirmed, respondedAt, promptID, domain.PromptStatusTriggered)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListExpiredPrompts returns triggered prompts whose confirmation window
// has passed with no response.
func (s *SQLiteStore) ListExpiredPrompts(ctx context.Context, now time.Time, limit int) ([]domain.PresencePrompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_id, session_id, status, scheduled_at, triggered_at, expires_at, responded_at
		 FROM presence_prompts
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND responded_at IS NULL
		 ORDER BY expires_at ASC LIMIT ?`,
		domain.PromptStatusTriggered, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []domain.PresencePrompt
	for rows.Next() {
		p, err := scanPromptRows(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// MarkPromptMissed transitions a triggered prompt to MISSED.
func (s *SQLiteStore) MarkPromptMissed(ctx context.Context, promptID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presence_prompts SET status = ? WHERE prompt_id = ? AND status = ?`,
		domain.PromptStatusMissed, promptID, domain.PromptStatusTriggered)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CreatePause creates a new pause.
func (s *SQLiteStore) CreatePause(ctx context.Context, pause *domain.Pause) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pauses (pause_id, session_id, kind, sequence, started_at, ended_at, duration_minutes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pause.PauseID, pause.SessionID, pause.Kind, pause.Sequence, pause.StartedAt, pause.EndedAt, nullInt(pause.DurationMinutes))
	return err
}

// GetOpenPause returns the open pause of the given kind, or nil.
func (s *SQLiteStore) GetOpenPause(ctx context.Context, sessionID string, kind domain.PauseKind) (*domain.Pause, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pause_id, session_id, kind, sequence, started_at, ended_at, duration_minutes
		 FROM pauses WHERE session_id = ? AND kind = ? AND ended_at IS NULL LIMIT 1`,
		sessionID, kind)
	return scanPause(row)
}

// GetAnyOpenPause returns any open pause of the session, or nil.
func (s *SQLiteStore) GetAnyOpenPause(ctx context.Context, sessionID string) (*domain.Pause, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pause_id, session_id, kind, sequence, started_at, ended_at, duration_minutes
		 FROM pauses WHERE session_id = ? AND ended_at IS NULL LIMIT 1`,
		sessionID)
	return scanPause(row)
}

// GetLastEndedPause returns the most recently ended pause of the given
// kind, or nil.
func (s *SQLiteStore) GetLastEndedPause(ctx context.Context, sessionID string, kind domain.PauseKind) (*domain.Pause, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pause_id, session_id, kind, sequence, started_at, ended_at, duration_minutes
		 FROM pauses WHERE session_id = ? AND kind = ? AND ended_at IS NOT NULL
		 ORDER BY sequence DESC LIMIT 1`,
		sessionID, kind)
	return scanPause(row)
}

// NextPauseSequence returns the next per-kind sequence number for the session.
func (s *SQLiteStore) NextPauseSequence(ctx context.Context, sessionID string, kind domain.PauseKind) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM pauses WHERE session_id = ? AND kind = ?`,
		sessionID, kind).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// EndPause closes an open pause. Returns false when it was already ended.
func (s *SQLiteStore) EndPause(ctx context.Context, pauseID string, endedAt time.Time, durationMinutes int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pauses SET ended_at = ?, duration_minutes = ? WHERE pause_id = ? AND ended_at IS NULL`,
		endedAt, durationMinutes, pauseID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListPauses lists all pauses of a session ordered by start time.
func (s *SQLiteStore) ListPauses(ctx context.Context, sessionID string) ([]domain.Pause, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pause_id, session_id, kind, sequence, started_at, ended_at, duration_minutes
		 FROM pauses WHERE session_id = ? ORDER BY started_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pauses []domain.Pause
	for rows.Next() {
		p, err := scanPauseRows(rows)
		if err != nil {
			return nil, err
		}
		pauses = append(pauses, *p)
	}
	return pauses, rows.Err()
}

// CreateCredential stores a freshly issued credential pair.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (access_token, refresh_token, worker_id, device_id, scope, access_expires_at, refresh_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cred.AccessToken, cred.RefreshToken, cred.WorkerID, cred.DeviceID, cred.Scope,
		cred.AccessTokenExpiresAt, cred.RefreshTokenExpiresAt)
	return err
}

// GetCredentialByAccessToken looks up a credential by access token.
func (s *SQLiteStore) GetCredentialByAccessToken(ctx context.Context, accessToken string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, worker_id, device_id, scope, access_expires_at, refresh_expires_at
		 FROM credentials WHERE access_token = ?`, accessToken)
	return scanCredential(row)
}

// GetCredentialByRefreshToken looks up a credential by refresh token.
func (s *SQLiteStore) GetCredentialByRefreshToken(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, worker_id, device_id, scope, access_expires_at, refresh_expires_at
		 FROM credentials WHERE refresh_token = ?`, refreshToken)
	return scanCredential(row)
}

// RotateCredential atomically invalidates the pair holding refreshToken
// and stores the next pair. Returns false when the refresh token is
// unknown (already rotated or never issued).
func (s *SQLiteStore) RotateCredential(ctx context.Context, refreshToken string, next *domain.Credential) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE refresh_token = ?`, refreshToken)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credentials (access_token, refresh_token, worker_id, device_id, scope, access_expires_at, refresh_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		next.AccessToken, next.RefreshToken, next.WorkerID, next.DeviceID, next.Scope,
		next.AccessTokenExpiresAt, next.RefreshTokenExpiresAt); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// DeleteCredentialsForWorker removes every credential of a worker.
func (s *SQLiteStore) DeleteCredentialsForWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE worker_id = ?`, workerID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	sess, err := scanSessionRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

func scanSessionRows(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var endedAt, lastSeenAt sql.NullTime
	var lastActivity sql.NullString
	if err := row.Scan(&sess.SessionID, &sess.WorkerID, &sess.Status, &sess.StartedAt, &endedAt, &lastSeenAt, &lastActivity, &sess.MissedCount); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if lastSeenAt.Valid {
		sess.LastSeenAt = &lastSeenAt.Time
	}
	if lastActivity.Valid {
		sess.LastActivity = lastActivity.String
	}
	return &sess, nil
}

func scanPrompt(row *sql.Row) (*domain.PresencePrompt, error) {
	p, err := scanPromptRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPromptRows(row rowScanner) (*domain.PresencePrompt, error) {
	var p domain.PresencePrompt
	var triggeredAt, expiresAt, respondedAt sql.NullTime
	if err := row.Scan(&p.PromptID, &p.SessionID, &p.Status, &p.ScheduledAt, &triggeredAt, &expiresAt, &respondedAt); err != nil {
		return nil, err
	}
	if triggeredAt.Valid {
		p.TriggeredAt = &triggeredAt.Time
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	if respondedAt.Valid {
		p.RespondedAt = &respondedAt.Time
	}
	return &p, nil
}

func scanPause(row *sql.Row) (*domain.Pause, error) {
	p, err := scanPauseRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPauseRows(row rowScanner) (*domain.Pause, error) {
	var p domain.Pause
	var endedAt sql.NullTime
	var duration sql.NullInt64
	if err := row.Scan(&p.PauseID, &p.SessionID, &p.Kind, &p.Sequence, &p.StartedAt, &endedAt, &duration); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		p.EndedAt = &endedAt.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		p.DurationMinutes = &d
	}
	return &p, nil
}

func scanCredential(row *sql.Row) (*domain.Credential, error) {
	var c domain.Credential
	var deviceID sql.NullString
	err := row.Scan(&c.AccessToken, &c.RefreshToken, &c.WorkerID, &deviceID, &c.Scope,
		&c.AccessTokenExpiresAt, &c.RefreshTokenExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if deviceID.Valid {
		c.DeviceID = deviceID.String
	}
	return &c, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

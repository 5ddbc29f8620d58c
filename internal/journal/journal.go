package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
	"github.com/ledgervoice/ledgervoice-core/internal/protocol"
)

// Entry kinds recorded on the session timeline.
const (
	KindTranscript = "transcript"
	KindCommand    = "command"
	KindError      = "error"
)

// Entry is one recorded timeline item. Payload holds the JSON-encoded
// protocol message that produced it.
type Entry struct {
	ID        int64
	SessionID string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// Journal persists the per-session voice timeline in SQLite. In ephemeral
// mode no database is opened and every write is a no-op; the pipeline runs
// identically, it just leaves no trace.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to its retention mode.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_entries_session_created ON entries(session_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartSession ensures a session row exists for the given capture session.
func (j *Journal) StartSession(ctx context.Context, sessionID string) error {
	if j.db == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at) VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, j.clock().UTC())
	return err
}

// EndSession stamps the session with its completion time and applies the
// retention policy.
func (j *Journal) EndSession(ctx context.Context, sessionID string) error {
	if j.db == nil {
		return nil
	}
	if _, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		j.clock().UTC(), sessionID); err != nil {
		return err
	}
	if err := j.Prune(ctx); err != nil {
		j.log.Warn("journal prune failed", slog.String("error", err.Error()))
	}
	return nil
}

// RecordTranscript stores recognizer output on the timeline. Partial
// transcripts are skipped; only finals are worth keeping.
func (j *Journal) RecordTranscript(ctx context.Context, t protocol.Transcript) error {
	if !t.Final {
		return nil
	}
	return j.append(ctx, t.SessionID, KindTranscript, t)
}

// RecordCommand stores a parsed command on the timeline.
func (j *Journal) RecordCommand(ctx context.Context, c protocol.Command) error {
	return j.append(ctx, c.SessionID, KindCommand, c)
}

// RecordError stores a pipeline failure on the timeline.
func (j *Journal) RecordError(ctx context.Context, e protocol.VoiceError) error {
	return j.append(ctx, e.SessionID, KindError, e)
}

func (j *Journal) append(ctx context.Context, sessionID, kind string, payload any) error {
	if j.db == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", kind, err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO entries(session_id, kind, payload, created_at) VALUES(?, ?, ?, ?)`,
		sessionID, kind, data, j.clock().UTC())
	return err
}

// SessionEntries retrieves up to limit entries for a session in time order.
func (j *Journal) SessionEntries(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, kind, payload, created_at
		 FROM entries WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Payload, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies the configured retention. Called on startup and whenever a
// session ends.
func (j *Journal) Prune(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

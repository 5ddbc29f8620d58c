package vocabulary

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledgervoice/ledgervoice-core/internal/config"
)

// Term maps a spoken form to its canonical ledger value.
type Term struct {
	ID        int64
	Spoken    string
	Mapped    string
	Category  string
	Active    bool
	CreatedAt time.Time
}

// Store persists the domain dictionary in SQLite. Reads vastly outnumber
// writes; term edits are administrative and externally serialized.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the vocabulary database, creating the schema if needed.
func Open(ctx context.Context, cfg config.VocabularyConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS terms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    spoken TEXT NOT NULL,
    mapped TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_terms_spoken ON terms(spoken);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add inserts a term. The spoken form is stored case-normalized; duplicates
// are allowed and the earliest insertion wins on lookup.
func (s *Store) Add(ctx context.Context, spoken, mapped, category string) (int64, error) {
	spoken = normalize(spoken)
	if spoken == "" {
		return 0, fmt.Errorf("spoken form must not be empty")
	}
	if mapped == "" {
		return 0, fmt.Errorf("mapped form must not be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO terms(spoken, mapped, category, active, created_at) VALUES(?, ?, ?, 1, ?)`,
		spoken, mapped, category, s.clock().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Deactivate hides a term from lookups without deleting it.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE terms SET active = 0 WHERE id = ?`, id)
	return err
}

// Lookup resolves a spoken form to its first active mapping.
func (s *Store) Lookup(ctx context.Context, spoken string) (Term, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, spoken, mapped, category, active, created_at FROM terms
		 WHERE spoken = ? AND active = 1 ORDER BY id ASC LIMIT 1`, normalize(spoken))
	term, err := scanTerm(row)
	if err == sql.ErrNoRows {
		return Term{}, false, nil
	}
	if err != nil {
		return Term{}, false, err
	}
	return term, true, nil
}

// LookupMap returns all active terms keyed by spoken form, first match wins.
func (s *Store) LookupMap(ctx context.Context) (map[string]Term, error) {
	terms, err := s.ListActive(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Term, len(terms))
	for _, t := range terms {
		if _, exists := out[t.Spoken]; !exists {
			out[t.Spoken] = t
		}
	}
	return out, nil
}

// ListActive returns active terms in insertion order, bounded by limit when
// limit > 0.
func (s *Store) ListActive(ctx context.Context, limit int) ([]Term, error) {
	query := `SELECT id, spoken, mapped, category, active, created_at FROM terms
		 WHERE active = 1 ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		term, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// ContextPrompt joins the first limit active spoken forms into a bounded
// string used to bias the recognizer toward domain vocabulary.
func (s *Store) ContextPrompt(ctx context.Context, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	terms, err := s.ListActive(ctx, limit)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, t.Spoken)
	}
	return strings.Join(parts, ", "), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (Term, error) {
	var t Term
	var active int
	var created string
	if err := row.Scan(&t.ID, &t.Spoken, &t.Mapped, &t.Category, &active, &created); err != nil {
		return Term{}, err
	}
	t.Active = active != 0
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

func normalize(spoken string) string {
	return strings.ToLower(strings.TrimSpace(spoken))
}

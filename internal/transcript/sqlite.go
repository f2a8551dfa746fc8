package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    model TEXT,
    cwd TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    text_content TEXT,
    reasoning TEXT,
    tool_calls TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    error TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(session_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, sequence);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// schemaVersion is the version fresh databases are stamped with.
// Increment alongside a new entry in migrations.
const schemaVersion = 1

type migration struct {
	version     int
	description string
	statements  []string
}

// migrations upgrade databases created by older builds. Version 1 is
// the initial schema, so the slice starts empty.
var migrations = []migration{}

// Open creates or opens the transcript database at path, creating the
// parent directory as needed.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
		return err
	}
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
		}
		if _, err := db.Exec(`UPDATE schema_version SET version = ?`, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) StartSession(ctx context.Context, sess *Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, provider, model, cwd, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Provider, sess.Model, sess.CWD, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn *Turn) error {
	calls, err := json.Marshal(turn.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, sequence, text_content, reasoning, tool_calls,
		                    input_tokens, output_tokens, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turn.Sequence, turn.Text, turn.Reasoning, string(calls),
		turn.InputTokens, turn.OutputTokens, nullString(turn.Error), turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string, limit, offset int) ([]Turn, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, text_content, reasoning, tool_calls,
		        input_tokens, output_tokens, error, created_at
		 FROM turns WHERE session_id = ? ORDER BY sequence LIMIT ? OFFSET ?`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var calls string
		var errMsg sql.NullString
		if err := rows.Scan(&t.Sequence, &t.Text, &t.Reasoning, &calls,
			&t.InputTokens, &t.OutputTokens, &errMsg, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if calls != "" {
			if err := json.Unmarshal([]byte(calls), &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		t.Error = errMsg.String
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, model, cwd, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Provider, &sess.Model, &sess.CWD, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

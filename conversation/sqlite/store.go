// Package sqlite provides a core.ConversationStore backed by SQLite using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
)

// ErrEmptyID is returned by Append when no conversation id is given.
var ErrEmptyID = errors.New("sqlite: empty conversation id")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id      TEXT PRIMARY KEY,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT    NOT NULL REFERENCES conversations(id),
	seq             INTEGER NOT NULL,
	payload         JSON    NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);`

// Options configures a Store.
type Options struct {
	Logger logging.Logger
}

// Store persists conversations in two tables: one row per conversation and one
// row per message holding the JSON encoded core.Message.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

var _ core.ConversationStore = (*Store)(nil)

// Open opens a SQLite database at path (":memory:" for a private in-memory
// database). The pool is limited to a single connection so that writers
// serialize and in-memory databases are not split across connections.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: configure %s: %w", path, err)
	}
	return db, nil
}

// New creates a store on db and applies the schema.
func New(db *sql.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{db: db, logger: logging.OrNoOp(opts.Logger)}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Load returns the stored conversation or a fresh one with a new id.
func (s *Store) Load(ctx context.Context, id string) (*core.Conversation, error) {
	if id == "" {
		return core.NewConversation(""), nil
	}

	var created, updated string
	err := s.db.QueryRowContext(ctx, `SELECT created, updated FROM conversations WHERE id = ?`, id).Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewConversation(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load conversation %s: %w", id, err)
	}

	msgs, err := queryMessages(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	return &core.Conversation{
		ID:       id,
		Messages: msgs,
		Created:  parseTime(created),
		Updated:  parseTime(updated),
	}, nil
}

// Append adds msgs within a single transaction after validating ordering
// against the stored history.
func (s *Store) Append(ctx context.Context, id string, msgs ...core.Message) (err error) {
	if id == "" {
		return ErrEmptyID
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := queryMessages(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := core.CheckAppend(existing, msgs); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, created, updated) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated = excluded.updated`, id, now, now); err != nil {
		return fmt.Errorf("sqlite: upsert conversation %s: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (conversation_id, seq, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("sqlite: encode message: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, id, len(existing)+i, string(payload)); err != nil {
			return fmt.Errorf("sqlite: insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	s.logger.Debug("store.append", "conversation_id", id, "messages", len(msgs))
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMessages(ctx context.Context, q querier, id string) ([]core.Message, error) {
	rows, err := q.QueryContext(ctx, `SELECT payload FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []core.Message{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m core.Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("sqlite: decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

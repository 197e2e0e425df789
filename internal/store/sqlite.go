// Package store persists conversations, message logs, and the derived memory
// slots in a local SQLite database.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// SQLiteStore implements schema.ConversationStore on a single database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ schema.ConversationStore = (*SQLiteStore)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked while a turn is being written; the busy
	// timeout covers the remaining writer-vs-writer contention.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	cli_session_id TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL DEFAULT '',
	state_json     TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

CREATE TABLE IF NOT EXISTS liked_answers (
	conversation_id TEXT NOT NULL,
	last_message_id INTEGER NOT NULL,
	status          TEXT NOT NULL,
	file_path       TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	PRIMARY KEY (conversation_id, last_message_id)
);
`

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Conversations ─────────────────────────────────────────────────────────

// CreateConversation inserts a new conversation and returns its id.
func (s *SQLiteStore) CreateConversation(owner, title string) (string, error) {
	id := newID()
	now := timestamp(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, owner, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, owner, title, now, now)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Conversation(id string) (*schema.Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, owner, title, cli_session_id, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return conv, nil
}

// Conversations lists an owner's conversations, most recently updated first.
func (s *SQLiteStore) Conversations(owner string) ([]schema.Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, owner, title, cli_session_id, created_at, updated_at
		FROM conversations WHERE owner = ?
		ORDER BY updated_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []schema.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// ConversationIDs returns every conversation id regardless of owner.
func (s *SQLiteStore) ConversationIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteConversation removes the conversation, its messages, and any liked
// entries pointing at it.
func (s *SQLiteStore) DeleteConversation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM liked_answers WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete liked entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateTitle(id, title string) error {
	return s.touch(id, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title)
}

func (s *SQLiteStore) UpdateCLISession(id, sessionID string) error {
	return s.touch(id, `UPDATE conversations SET cli_session_id = ?, updated_at = ? WHERE id = ?`, sessionID)
}

// touch runs a single-column update that also bumps updated_at.
func (s *SQLiteStore) touch(id, query, value string) error {
	res, err := s.db.Exec(query, value, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: not found", id)
	}
	return nil
}

// ─── Messages and memory slots ─────────────────────────────────────────────

// Load returns the full log plus the memory slots in one shot. Missing slots
// come back as empty strings; callers treat those as empty memory.
func (s *SQLiteStore) Load(id string) ([]schema.Message, string, string, error) {
	var summary, stateJSON string
	err := s.db.QueryRow(`
		SELECT summary, state_json FROM conversations WHERE id = ?
	`, id).Scan(&summary, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, "", "", fmt.Errorf("conversation %s: not found", id)
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("load memory slots %s: %w", id, err)
	}

	messages, err := s.Messages(id)
	if err != nil {
		return nil, "", "", err
	}
	return messages, summary, stateJSON, nil
}

func (s *SQLiteStore) Messages(id string) ([]schema.Message, error) {
	return s.queryMessages(`
		SELECT id, role, content, created_at FROM messages
		WHERE conversation_id = ? ORDER BY id
	`, id)
}

// MessagesUpTo returns the log prefix ending at lastMessageID inclusive.
func (s *SQLiteStore) MessagesUpTo(id string, lastMessageID int64) ([]schema.Message, error) {
	return s.queryMessages(`
		SELECT id, role, content, created_at FROM messages
		WHERE conversation_id = ? AND id <= ? ORDER BY id
	`, id, lastMessageID)
}

func (s *SQLiteStore) queryMessages(query string, args ...any) ([]schema.Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []schema.Message
	for rows.Next() {
		var msg schema.Message
		var created string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = parseTimestamp(created)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// SaveTurn appends one user/assistant exchange and overwrites the memory
// slots atomically. A failed transport turn never reaches this point, so the
// log only ever contains complete exchanges.
func (s *SQLiteStore) SaveTurn(id string, user, assistant schema.Message, summary, stateJSON string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range []schema.Message{user, assistant} {
		_, err := tx.Exec(`
			INSERT INTO messages (conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?)
		`, id, msg.Role, msg.Content, timestamp(msg.CreatedAt))
		if err != nil {
			return fmt.Errorf("append %s message: %w", msg.Role, err)
		}
	}

	res, err := tx.Exec(`
		UPDATE conversations SET summary = ?, state_json = ?, updated_at = ?
		WHERE id = ?
	`, summary, stateJSON, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update memory slots: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: not found", id)
	}
	return tx.Commit()
}

// SaveMemory overwrites the memory slots without touching the log.
func (s *SQLiteStore) SaveMemory(id, summary, stateJSON string) error {
	res, err := s.db.Exec(`
		UPDATE conversations SET summary = ?, state_json = ?, updated_at = ?
		WHERE id = ?
	`, summary, stateJSON, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("save memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: not found", id)
	}
	return nil
}

// ─── Liked answers ─────────────────────────────────────────────────────────

func (s *SQLiteStore) LikedEntry(conversationID string, lastMessageID int64) (*schema.LikedEntry, error) {
	var entry schema.LikedEntry
	var created string
	err := s.db.QueryRow(`
		SELECT conversation_id, last_message_id, status, file_path, created_at
		FROM liked_answers WHERE conversation_id = ? AND last_message_id = ?
	`, conversationID, lastMessageID).Scan(
		&entry.ConversationID, &entry.LastMessageID, &entry.Status, &entry.FilePath, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load liked entry: %w", err)
	}
	entry.CreatedAt = parseTimestamp(created)
	return &entry, nil
}

func (s *SQLiteStore) CreateLikedEntry(conversationID string, lastMessageID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO liked_answers (conversation_id, last_message_id, status, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, lastMessageID, schema.LikedPending, timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("create liked entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateLikedStatus(conversationID string, lastMessageID int64, status schema.LikedStatus, filePath string) error {
	res, err := s.db.Exec(`
		UPDATE liked_answers SET status = ?, file_path = ?
		WHERE conversation_id = ? AND last_message_id = ?
	`, status, filePath, conversationID, lastMessageID)
	if err != nil {
		return fmt.Errorf("update liked entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("liked entry %s/%d: not found", conversationID, lastMessageID)
	}
	return nil
}

func (s *SQLiteStore) DeleteLikedEntry(conversationID string, lastMessageID int64) error {
	_, err := s.db.Exec(`
		DELETE FROM liked_answers WHERE conversation_id = ? AND last_message_id = ?
	`, conversationID, lastMessageID)
	if err != nil {
		return fmt.Errorf("delete liked entry: %w", err)
	}
	return nil
}

// ─── Helpers ───────────────────────────────────────────────────────────────

// scanConversation reads one conversation row from a row or rows cursor.
func scanConversation(row interface{ Scan(...any) error }) (*schema.Conversation, error) {
	var conv schema.Conversation
	var created, updated string
	err := row.Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.CLISessionID, &created, &updated)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = parseTimestamp(created)
	conv.UpdatedAt = parseTimestamp(updated)
	return &conv, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// newID returns a random 16-hex-char conversation id.
func newID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

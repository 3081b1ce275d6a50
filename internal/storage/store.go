// Package storage persists settings, conversations and suggestion history
// in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

const schema = `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updatedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		startedAt REAL NOT NULL,
		endedAt REAL
	);

	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		conversationId TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sequenceNumber INTEGER NOT NULL,
		text TEXT NOT NULL,
		closedAt REAL NOT NULL,
		UNIQUE(conversationId, sequenceNumber)
	);

	CREATE TABLE IF NOT EXISTS suggestion_sets (
		id TEXT PRIMARY KEY,
		sessionId TEXT,
		createdAt REAL NOT NULL,
		suggestions TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_conversation ON segments(conversationId, sequenceNumber);
	CREATE INDEX IF NOT EXISTS idx_suggestion_sets_created ON suggestion_sets(createdAt);
`

// Store provides read-write access to the gateway SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err, "ping database")
	}
	return nil
}

// Setting returns the value stored under key.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, "read setting %s", key)
	}
	return value, true, nil
}

// SetSetting stores value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
	`, key, value, unixFromTime(time.Now()))
	if err != nil {
		return unavailable(err, "write setting %s", key)
	}
	return nil
}

// DeleteSetting removes key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return unavailable(err, "delete setting %s", key)
	}
	return nil
}

// BeginConversation records the start of a session.
func (s *Store) BeginConversation(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, startedAt) VALUES (?, ?)`,
		id, unixFromTime(startedAt))
	if err != nil {
		return unavailable(err, "begin conversation")
	}
	return nil
}

// EndConversation records the end of a session.
func (s *Store) EndConversation(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET endedAt = ? WHERE id = ?`,
		unixFromTime(endedAt), id)
	if err != nil {
		return unavailable(err, "end conversation")
	}
	return nil
}

// AppendSegment persists one segment under its conversation, creating the
// conversation row if the session start was never recorded.
func (s *Store) AppendSegment(ctx context.Context, seg segment.Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, startedAt) VALUES (?, ?)`,
		seg.SessionID, unixFromTime(seg.ClosedAt)); err != nil {
		return unavailable(err, "ensure conversation")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO segments (id, conversationId, sequenceNumber, text, closedAt)
		VALUES (?, ?, ?, ?, ?)
	`, seg.ID, seg.SessionID, seg.Sequence, seg.Text, unixFromTime(seg.ClosedAt)); err != nil {
		return unavailable(err, "insert segment")
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit segment")
	}
	return nil
}

// RecentConversations returns up to limit conversations that have segments,
// newest first, each with its segments in order.
func (s *Store) RecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.startedAt, c.endedAt
		FROM conversations c
		WHERE EXISTS (SELECT 1 FROM segments s WHERE s.conversationId = c.id)
		ORDER BY c.startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, unavailable(err, "query conversations")
	}

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		var startedAt float64
		var endedAt sql.NullFloat64
		if err := rows.Scan(&c.ID, &startedAt, &endedAt); err != nil {
			rows.Close()
			return nil, unavailable(err, "scan conversation")
		}
		c.StartedAt = timeFromUnix(startedAt)
		if endedAt.Valid {
			t := timeFromUnix(endedAt.Float64)
			c.EndedAt = &t
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable(err, "iterate conversations")
	}
	rows.Close()

	for i := range conversations {
		segs, err := s.segmentsFor(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Segments = segs
	}

	return conversations, nil
}

func (s *Store) segmentsFor(ctx context.Context, conversationID string) ([]segment.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversationId, sequenceNumber, text, closedAt
		FROM segments
		WHERE conversationId = ?
		ORDER BY sequenceNumber ASC
	`, conversationID)
	if err != nil {
		return nil, unavailable(err, "query segments")
	}
	defer rows.Close()

	var segs []segment.Segment
	for rows.Next() {
		var seg segment.Segment
		var closedAt float64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Sequence, &seg.Text, &closedAt); err != nil {
			return nil, unavailable(err, "scan segment")
		}
		seg.ClosedAt = timeFromUnix(closedAt)
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate segments")
	}
	return segs, nil
}

// ClearConversations deletes every conversation and segment.
func (s *Store) ClearConversations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
		return unavailable(err, "clear segments")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return unavailable(err, "clear conversations")
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit clear")
	}
	return nil
}

// PrependSuggestionSet stores set as the newest history entry and trims the
// history to the newest limit entries.
func (s *Store) PrependSuggestionSet(ctx context.Context, set suggestion.Set, limit int) error {
	payload, err := json.Marshal(set.Suggestions)
	if err != nil {
		return apperr.Wrap(err, apperr.StorageUnavailable, "encode suggestions")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO suggestion_sets (id, sessionId, createdAt, suggestions) VALUES (?, ?, ?, ?)
	`, set.ID, set.SessionID, unixFromTime(set.CreatedAt), string(payload)); err != nil {
		return unavailable(err, "insert suggestion set")
	}

	// rowid breaks ties between sets created in the same instant
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM suggestion_sets WHERE rowid NOT IN (
			SELECT rowid FROM suggestion_sets ORDER BY createdAt DESC, rowid DESC LIMIT ?
		)
	`, limit); err != nil {
		return unavailable(err, "trim suggestion history")
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err, "commit suggestion set")
	}
	return nil
}

// SuggestionHistory returns the stored suggestion sets, newest first.
func (s *Store) SuggestionHistory(ctx context.Context) ([]suggestion.Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sessionId, createdAt, suggestions
		FROM suggestion_sets
		ORDER BY createdAt DESC, rowid DESC
	`)
	if err != nil {
		return nil, unavailable(err, "query suggestion history")
	}
	defer rows.Close()

	var history []suggestion.Set
	for rows.Next() {
		var set suggestion.Set
		var sessionID sql.NullString
		var createdAt float64
		var payload string
		if err := rows.Scan(&set.ID, &sessionID, &createdAt, &payload); err != nil {
			return nil, unavailable(err, "scan suggestion set")
		}
		set.SessionID = sessionID.String
		set.CreatedAt = timeFromUnix(createdAt)
		if err := json.Unmarshal([]byte(payload), &set.Suggestions); err != nil {
			return nil, apperr.Wrap(err, apperr.StorageUnavailable, "decode suggestions")
		}
		history = append(history, set)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate suggestion history")
	}
	return history, nil
}

func unavailable(err error, format string, args ...interface{}) error {
	return apperr.Wrapf(err, apperr.StorageUnavailable, format, args...)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Sub-document keys in the prefs table.
const (
	keyTopics   = "topics"
	keyHome     = "home"
	keyCalendar = "calendar"
)

// SQLiteStore persists each preference sub-document as a JSON blob keyed by
// (user_id, key), so concurrent writes to different sub-documents never
// clobber each other.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath. Use ":memory:"
// for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open prefs database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS prefs (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create prefs schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (Preferences, error) {
	var p Preferences
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, doc FROM prefs WHERE user_id = ?`, userOrDefault(userID))
	if err != nil {
		return p, fmt.Errorf("load prefs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return p, fmt.Errorf("scan prefs row: %w", err)
		}
		switch key {
		case keyTopics:
			if err := json.Unmarshal([]byte(doc), &p.Topics); err != nil {
				return p, fmt.Errorf("decode topics: %w", err)
			}
		case keyHome:
			if err := json.Unmarshal([]byte(doc), &p.Home); err != nil {
				return p, fmt.Errorf("decode home: %w", err)
			}
		case keyCalendar:
			if err := json.Unmarshal([]byte(doc), &p.Calendar); err != nil {
				return p, fmt.Errorf("decode calendar: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("load prefs: %w", err)
	}
	return normalize(p), nil
}

func (s *SQLiteStore) SaveTopics(ctx context.Context, userID string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	return s.put(ctx, userID, keyTopics, topics)
}

func (s *SQLiteStore) SaveHome(ctx context.Context, userID string, home HomeLocation) error {
	return s.put(ctx, userID, keyHome, home)
}

func (s *SQLiteStore) SaveCalendar(ctx context.Context, userID string, cal CalendarFeed) error {
	return s.put(ctx, userID, keyCalendar, cal)
}

func (s *SQLiteStore) put(ctx context.Context, userID, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prefs (user_id, key, doc) VALUES (?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET doc = excluded.doc`,
		userOrDefault(userID), key, string(doc))
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func userOrDefault(userID string) string {
	if userID == "" {
		return DefaultUserID
	}
	return userID
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*FileStore)(nil)

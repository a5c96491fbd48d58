package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/bookmark"

	_ "modernc.org/sqlite"
)

// Setting keys.
const (
	KeyVoice        = "voice"
	KeySpeed        = "speed"
	KeyInstructions = "instructions"
)

// Settings are the persisted narration preferences. Zero values mean the
// setting was never saved.
type Settings struct {
	Voice        string
	Speed        float64
	Instructions string
}

// Store is a SQLite-backed settings and bookmark store. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps an in-memory database alive and serializes
	// writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Debug("Opened store", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		key TEXT PRIMARY KEY,
		tab_key TEXT,
		payload TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_tab_key ON bookmarks(tab_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSettings returns every saved setting.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out Settings
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, fmt.Errorf("failed to scan setting: %w", err)
		}
		switch k {
		case KeyVoice:
			out.Voice = v
		case KeyInstructions:
			out.Instructions = v
		case KeySpeed:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				log.Warn("Ignoring malformed speed setting", "value", v)
				continue
			}
			out.Speed = f
		}
	}
	return out, rows.Err()
}

// SaveSetting stores value under key.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// SaveSpeed stores the playback speed.
func (s *Store) SaveSpeed(speed float64) error {
	return s.SaveSetting(context.Background(), KeySpeed, strconv.FormatFloat(speed, 'f', -1, 64))
}

// SaveVoice stores the narrator voice.
func (s *Store) SaveVoice(voice string) error {
	return s.SaveSetting(context.Background(), KeyVoice, voice)
}

// SaveBookmark stores b under b.Key, replacing any earlier bookmark for
// the same page.
func (s *Store) SaveBookmark(ctx context.Context, b bookmark.Bookmark) error {
	if b.Key == "" {
		return bookmark.ErrNoPageKey
	}
	if b.SavedAt.IsZero() {
		b.SavedAt = time.Now()
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (key, tab_key, payload, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			tab_key = excluded.tab_key,
			payload = excluded.payload,
			saved_at = excluded.saved_at
	`, b.Key, nullString(b.TabKey), string(payload), b.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}
	return nil
}

// LoadBookmark returns the bookmark saved under key, matching either its
// page key or its tab key. The newest match wins.
func (s *Store) LoadBookmark(ctx context.Context, key string) (bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM bookmarks
		WHERE key = ? OR tab_key = ?
		ORDER BY key = ? DESC, saved_at DESC
		LIMIT 1
	`, key, key, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return bookmark.Bookmark{}, bookmark.ErrNoBookmark
	}
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("failed to load bookmark: %w", err)
	}
	return decodeBookmark(payload)
}

// ListBookmarks returns every bookmark, newest first.
func (s *Store) ListBookmarks(ctx context.Context) ([]bookmark.Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM bookmarks ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []bookmark.Bookmark
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		b, err := decodeBookmark(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBookmark removes the bookmark saved under key.
func (s *Store) DeleteBookmark(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE key = ? OR tab_key = ?`, key, key)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return bookmark.ErrNoBookmark
	}
	return nil
}

func decodeBookmark(payload string) (bookmark.Bookmark, error) {
	var b bookmark.Bookmark
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("failed to decode bookmark: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

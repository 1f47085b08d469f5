package sqlite

import (
	"context"
	"database/sql"
	"errors"
	mrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/grixate/hunthelper/internal/storage"
)

// Store keeps the same records as the bbolt store in a single SQLite file.
type Store struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
	mu      sync.Mutex
}

var _ storage.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:      db,
		entropy: ulid.Monotonic(mrand.New(mrand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT OR IGNORE INTO schema_migrations (version) VALUES (1)`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nextULID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) LoadState(ctx context.Context) ([]byte, error) {
	var data []byte
	switch err := s.db.QueryRowContext(ctx, `SELECT data FROM state WHERE id = 1`).Scan(&data); err {
	case nil:
		return data, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (s *Store) SaveState(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		data, time.Now().UTC().Unix(),
	)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, event storage.Event) (storage.Event, error) {
	if event.ID == "" {
		event.ID = s.nextULID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, summary, created_at, version) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.Kind, event.Summary, event.CreatedAt.UnixMilli(), event.Version,
	)
	return event, err
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]storage.Event, error) {
	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, summary, created_at, version FROM (
			SELECT * FROM events ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]storage.Event, 0, limit)
	for rows.Next() {
		var (
			event   storage.Event
			created int64
		)
		if err := rows.Scan(&event.ID, &event.Kind, &event.Summary, &created, &event.Version); err != nil {
			return nil, err
		}
		event.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	mrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"

	"github.com/grixate/hunthelper/internal/storage"
)

var (
	bucketState            = []byte("state")
	bucketEvents           = []byte("events")
	bucketSchemaMigrations = []byte("schema_migrations")

	stateKey    = []byte("hunt")
	eventPrefix = []byte("event:")
)

type writeTask struct {
	ctx  context.Context
	fn   func(tx *bbolt.Tx) error
	done chan error
}

type Store struct {
	db      *bbolt.DB
	writes  chan writeTask
	stop    chan struct{}
	wg      sync.WaitGroup
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
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:      db,
		writes:  make(chan writeTask, 128),
		stop:    make(chan struct{}),
		entropy: ulid.Monotonic(mrand.New(mrand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	store.wg.Add(1)
	go store.writer()
	return store, nil
}

func (s *Store) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) initSchema() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketState, bucketEvents, bucketSchemaMigrations} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		migrations := tx.Bucket(bucketSchemaMigrations)
		return migrations.Put([]byte("schema_version"), []byte("1"))
	})
}

func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case task := <-s.writes:
			err := s.db.Update(func(tx *bbolt.Tx) error {
				return task.fn(tx)
			})
			select {
			case task.done <- err:
			default:
			}
		}
	}
}

func (s *Store) runWrite(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	t := writeTask{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case s.writes <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) nextULID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) LoadState(_ context.Context) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if value := tx.Bucket(bucketState).Get(stateKey); value != nil {
			out = append([]byte(nil), value...)
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveState(ctx context.Context, data []byte) error {
	payload := append([]byte(nil), data...)
	return s.runWrite(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(stateKey, payload)
	})
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
	payload, err := json.Marshal(event)
	if err != nil {
		return event, err
	}
	err = s.runWrite(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(append(append([]byte(nil), eventPrefix...), event.ID...), payload)
	})
	return event, err
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Store) RecentEvents(_ context.Context, limit int) ([]storage.Event, error) {
	if limit <= 0 {
		limit = storage.DefaultEventLimit
	}
	events := make([]storage.Event, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for key, value := cursor.Last(); key != nil && len(events) < limit; key, value = cursor.Prev() {
			if !bytes.HasPrefix(key, eventPrefix) {
				continue
			}
			var event storage.Event
			if err := json.Unmarshal(value, &event); err != nil {
				continue
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

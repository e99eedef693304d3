package checkpoints

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps checkpoints in a SQLite database, in the table
// checkpoints(cycle_id INTEGER PRIMARY KEY, weights BLOB).
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore returns a store on the database file in path. Call Init before using it.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database, creating it and its table if needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.New("sqlite checkpoint store path is required")
	}
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", s.path)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", s.path)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "failed to connect to %q", s.path)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			cycle_id INTEGER PRIMARY KEY,
			weights BLOB NOT NULL
		);
	`)
	if err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "failed to create checkpoints table in %q", s.path)
	}
	s.db = db
	klog.V(1).Infof("Opened checkpoints database %q", s.path)
	return nil
}

// Close the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite checkpoint store is not initialized")
	}
	return s.db, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context) (*Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	record := &Record{}
	err = db.QueryRowContext(ctx, `SELECT cycle_id, weights FROM checkpoints ORDER BY cycle_id DESC LIMIT 1`).
		Scan(&record.CycleID, &record.Weights)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to query latest checkpoint")
	}
	return record, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, record Record) error {
	if record.CycleID < 0 {
		return errors.Errorf("invalid checkpoint cycle id %d", record.CycleID)
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	weights := record.Weights
	if weights == nil {
		weights = []byte{}
	}
	_, err = db.ExecContext(ctx, `INSERT INTO checkpoints (cycle_id, weights) VALUES (?, ?)`, record.CycleID, weights)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") ||
			strings.Contains(strings.ToLower(err.Error()), "primary key") {
			return errors.Wrapf(ErrExists, "cycle %d in %q", record.CycleID, s.path)
		}
		return errors.Wrapf(err, "failed to insert checkpoint %d", record.CycleID)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]int, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT cycle_id FROM checkpoints ORDER BY cycle_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list checkpoints")
	}
	defer func() { _ = rows.Close() }()
	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan checkpoint id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to list checkpoints")
}

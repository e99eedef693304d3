// Package checkpoints stores the model weights produced by each training cycle, keyed by the cycle id.
//
// Stores are append-only: a record is never overwritten. The latest checkpoint is the one with the highest
// cycle id, whatever the order in which records were put.
package checkpoints

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrExists is returned by Store.Put when a checkpoint for the cycle id is already stored.
var ErrExists = errors.New("checkpoint already exists")

// Record is one stored checkpoint.
type Record struct {
	// CycleID of the cycle whose trainer produced the weights.
	CycleID int

	// Weights is the opaque serialized model, see ai.Learner.
	Weights []byte
}

// Store of checkpoints. Implementations must be safe for concurrent use.
type Store interface {
	// Latest returns the checkpoint with the highest cycle id, or nil (and no error) if the store is empty.
	Latest(ctx context.Context) (*Record, error)

	// Put stores the record. It returns ErrExists (possibly wrapped) if the cycle id is already stored.
	Put(ctx context.Context, record Record) error

	// List returns the stored cycle ids in increasing order.
	List(ctx context.Context) ([]int, error)
}

// Backend names accepted by Open.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// WeightsDirName is the directory, under the data directory, holding checkpoints of the "dir" backend and
// the database of the "sqlite" backend.
const WeightsDirName = "weights"

// Open the checkpoint store of the given backend under dataDir. Stores that hold resources should be
// released with Close.
func Open(ctx context.Context, backend, dataDir string) (Store, error) {
	dir := filepath.Join(dataDir, WeightsDirName)
	switch backend {
	case "", BackendDir:
		return NewDirStore(dir)
	case BackendSQLite:
		s := NewSQLiteStore(filepath.Join(dir, "checkpoints.db"))
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, errors.Errorf("unsupported checkpoint backend %q, valid values are %q, %q or %q",
		backend, BackendDir, BackendSQLite, BackendMemory)
}

// Close the store if it holds resources.
func Close(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

package checkpoints

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// Extension of checkpoint files in a DirStore.
	Extension = ".ckpt"

	// CurrentName is the file holding the "current" weights blob: the one consumed at process start when no
	// checkpoint exists yet, and written by trainings that don't run in cycles.
	CurrentName = "current" + Extension
)

// DirStore keeps one file "<cycle_id>.ckpt" per checkpoint in a directory.
// Files whose stem is not an integer are ignored.
type DirStore struct {
	Dir string

	// mu serializes Put, so two concurrent puts of the same id can't both succeed.
	mu sync.Mutex
}

// NewDirStore creates dir if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create checkpoints directory %q", dir)
	}
	return &DirStore{Dir: dir}, nil
}

// Path of the checkpoint file for the cycle id.
func (s *DirStore) Path(cycleID int) string {
	return filepath.Join(s.Dir, strconv.Itoa(cycleID)+Extension)
}

// List implements Store.
func (s *DirStore) List(_ context.Context) ([]int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list checkpoints in %q", s.Dir)
	}
	var ids []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, Extension))
		if err != nil || id < 0 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Latest implements Store.
func (s *DirStore) Latest(ctx context.Context) (*Record, error) {
	ids, err := s.List(ctx)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	id := ids[len(ids)-1]
	weights, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %d", id)
	}
	return &Record{CycleID: id, Weights: weights}, nil
}

// Put implements Store. The file is written under a temporary name and then renamed, so Latest never
// reads a partial checkpoint.
func (s *DirStore) Put(_ context.Context, record Record) error {
	if record.CycleID < 0 {
		return errors.Errorf("invalid checkpoint cycle id %d", record.CycleID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.Path(record.CycleID)
	if _, err := os.Stat(path); err == nil {
		return errors.Wrapf(ErrExists, "cycle %d in %q", record.CycleID, s.Dir)
	}
	if err := writeAndRename(path, record.Weights, false); err != nil {
		return err
	}
	klog.V(1).Infof("Saved checkpoint %q", path)
	return nil
}

// LoadCurrent returns the "current" weights blob, or nil if there is none.
func (s *DirStore) LoadCurrent() ([]byte, error) {
	weights, err := os.ReadFile(filepath.Join(s.Dir, CurrentName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read current weights")
	}
	return weights, nil
}

// SaveCurrent replaces the "current" weights blob. The previous one is kept with a "~" suffix.
func (s *DirStore) SaveCurrent(weights []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAndRename(filepath.Join(s.Dir, CurrentName), weights, true)
}

func temporaryName(path string) string { return path + "_tmp" }
func backupName(path string) string    { return path + "~" }

// writeAndRename writes contents to a temporary file, and renames it to path when done.
// If backup is true, an existing path is first renamed to its backup name.
func writeAndRename(path string, contents []byte, backup bool) error {
	tmp := temporaryName(path)
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file %q", tmp)
	}
	_, err = f.Write(contents)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to write %q", tmp)
	}
	if backup {
		if _, err = os.Stat(path); err == nil {
			if err = os.Rename(path, backupName(path)); err != nil {
				return errors.Wrapf(err, "failed backing up, while renaming %q to %q", path, backupName(path))
			}
		}
	}
	if err = os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed renaming %q to %q", tmp, path)
	}
	return nil
}

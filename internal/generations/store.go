// Package generations implements the rotating ring of storage slots holding self-play trajectory batches,
// and the retention policies that decide which slots each cycle writes and reads.
//
// On disk a Store is a directory with one sub-directory per slot ("storage_0" ... "storage_{K-1}") plus one
// fixed, never rotated, seed pool directory ("storage" for reinforcement learning, "train" for imitation).
package generations

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/selfplay/internal/trajectory"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultSeedDirName is the fixed seed pool directory used for reinforcement learning.
	DefaultSeedDirName = "storage"

	// ImitationSeedDirName is the fixed seed pool directory used for imitation learning.
	ImitationSeedDirName = "train"

	slotDirPrefix = "storage_"
)

// Store of generation slots in a directory.
type Store struct {
	// Root directory holding the slots and the seed pool.
	Root string

	// NumSlots is the ring size K.
	NumSlots int

	// SeedDirName is the name of the fixed seed pool directory under Root.
	SeedDirName string
}

// NewStore returns a Store with numSlots slots under root. It doesn't touch the disk, see Init.
func NewStore(root string, numSlots int, seedDirName string) *Store {
	if seedDirName == "" {
		seedDirName = DefaultSeedDirName
	}
	return &Store{Root: root, NumSlots: numSlots, SeedDirName: seedDirName}
}

// Init creates the slot and seed directories if they don't exist yet.
func (s *Store) Init() error {
	if s.NumSlots <= 0 {
		return errors.Errorf("invalid number of generation slots %d", s.NumSlots)
	}
	dirs := []string{s.SeedDir()}
	for slot := range s.NumSlots {
		dirs = append(dirs, s.SlotDir(slot))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create generation directory %q", dir)
		}
	}
	return nil
}

// SlotDir returns the directory of the given slot.
func (s *Store) SlotDir(slot int) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s%d", slotDirPrefix, slot))
}

// SeedDir returns the directory of the fixed seed pool.
func (s *Store) SeedDir() string {
	return filepath.Join(s.Root, s.SeedDirName)
}

func (s *Store) checkSlot(slot int) error {
	if slot < 0 || slot >= s.NumSlots {
		return errors.Errorf("slot %d out of range [0, %d)", slot, s.NumSlots)
	}
	return nil
}

// Files returns the committed batches of the slot, sorted by name.
func (s *Store) Files(slot int) ([]string, error) {
	if err := s.checkSlot(slot); err != nil {
		return nil, err
	}
	return trajectory.List(s.SlotDir(slot))
}

// FilesOf returns the committed batches of each of the given slots, in the same order.
func (s *Store) FilesOf(slots []int) ([][]string, error) {
	files := make([][]string, len(slots))
	for ii, slot := range slots {
		var err error
		files[ii], err = s.Files(slot)
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// SeedFiles returns the committed batches of the seed pool.
func (s *Store) SeedFiles() ([]string, error) {
	return trajectory.List(s.SeedDir())
}

// Count returns the number of committed batches in the slot.
func (s *Store) Count(slot int) (int, error) {
	files, err := s.Files(slot)
	return len(files), err
}

// Evict deletes every record of the slot, including batches abandoned mid-write by crashed collectors.
// It must only be called while no task is reading or writing the slot, that is, between cycles.
//
// It returns the number of files and bytes removed.
func (s *Store) Evict(slot int) (numFiles int, numBytes int64, err error) {
	if err = s.checkSlot(slot); err != nil {
		return
	}
	dir := s.SlotDir(slot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, errors.Wrapf(err, "failed to list slot %d for eviction", slot)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, infoErr := entry.Info(); infoErr == nil {
			numBytes += info.Size()
		}
		path := filepath.Join(dir, entry.Name())
		if err = os.Remove(path); err != nil {
			return numFiles, numBytes, errors.Wrapf(err, "failed to evict %q", path)
		}
		numFiles++
	}
	klog.V(1).Infof("Evicted slot %d: %d files, %s", slot, numFiles, humanize.Bytes(uint64(numBytes)))
	return
}

package trajectory

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrVersionMismatch is returned by ReadBatch when a batch was written with a different format or
// environment version than the one requested. Readers are expected to skip such batches.
var ErrVersionMismatch = errors.New("trajectory batch version mismatch")

// Encode batch into w: gob compressed with zstd.
func Encode(w io.Writer, batch *Batch) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.Wrap(err, "failed to create zstd encoder")
	}
	if err = gob.NewEncoder(zw).Encode(batch); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "failed to encode trajectory batch")
	}
	return errors.Wrap(zw.Close(), "failed to flush zstd encoder")
}

// Decode a batch encoded with Encode.
func Decode(r io.Reader) (*Batch, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	defer zr.Close()
	batch := &Batch{}
	if err = gob.NewDecoder(zr).Decode(batch); err != nil {
		return nil, errors.Wrap(err, "failed to decode trajectory batch")
	}
	return batch, nil
}

// WriteBatch stages the batch in dir under a temporary name, syncs it and then renames it to
// name+Extension, so that List never observes partially written batches.
//
// It returns the final path and the number of bytes written.
func WriteBatch(dir, name string, batch *Batch) (path string, size int64, err error) {
	path = filepath.Join(dir, name+Extension)
	staging := path + stagingSuffix
	f, err := os.Create(staging)
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to create staging file %q", staging)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(staging)
		}
	}()
	if err = Encode(f, batch); err != nil {
		_ = f.Close()
		return "", 0, errors.WithMessagef(err, "writing %q", staging)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return "", 0, errors.Wrapf(err, "failed to sync %q", staging)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return "", 0, errors.Wrapf(err, "failed to stat %q", staging)
	}
	size = info.Size()
	if err = f.Close(); err != nil {
		return "", 0, errors.Wrapf(err, "failed to close %q", staging)
	}
	if err = os.Rename(staging, path); err != nil {
		return "", 0, errors.Wrapf(err, "failed to commit batch %q", path)
	}
	return path, size, nil
}

// ReadBatch reads the batch in path. If formatVersion or envVersion are not zero/empty and they don't
// match the batch, it returns ErrVersionMismatch (wrapped).
func ReadBatch(path string, formatVersion int, envVersion string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open batch %q", path)
	}
	defer func() { _ = f.Close() }()
	batch, err := Decode(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", path)
	}
	if (formatVersion != 0 && batch.FormatVersion != formatVersion) ||
		(envVersion != "" && batch.EnvVersion != envVersion) {
		return nil, errors.Wrapf(ErrVersionMismatch, "batch %q has format=%d/env=%q, wanted format=%d/env=%q",
			path, batch.FormatVersion, batch.EnvVersion, formatVersion, envVersion)
	}
	return batch, nil
}

// ReadAll reads all trajectories of the given batch files. Batches with mismatched versions are skipped
// with a warning, any other failure is returned.
//
// The same path may appear more than once (seed pools are sampled with replacement), in which case its
// trajectories are included as many times.
func ReadAll(paths []string, formatVersion int, envVersion string) (trajectories []Trajectory, skipped int, err error) {
	cache := make(map[string]*Batch)
	for _, path := range paths {
		batch, found := cache[path]
		if !found {
			batch, err = ReadBatch(path, formatVersion, envVersion)
			if errors.Is(err, ErrVersionMismatch) {
				klog.Warningf("Skipping batch: %v", err)
				cache[path] = nil
				skipped++
				err = nil
				continue
			}
			if err != nil {
				return nil, skipped, err
			}
			cache[path] = batch
		}
		if batch == nil {
			skipped++
			continue
		}
		trajectories = append(trajectories, batch.Trajectories...)
	}
	return
}

// List the committed batches in dir, sorted by name. A missing directory is an empty list.
// Batches still being staged are never listed.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list %q", dir)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// IsStaging returns whether the file name is of a batch still being written (or abandoned by a crashed writer).
func IsStaging(name string) bool {
	return strings.HasSuffix(name, Extension+stagingSuffix)
}

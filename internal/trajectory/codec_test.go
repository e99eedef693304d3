package trajectory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(envVersion string, numSteps int) *Batch {
	batch := NewBatch(envVersion)
	steps := make([]Step, numSteps)
	for ii := range steps {
		steps[ii] = Step{Features: []float32{float32(ii), 1}, Player: int8(ii % 2), Action: ii, Label: 1}
	}
	batch.Add(Trajectory{CollectorID: 1, Episode: 3, Outcome: 1, Steps: steps})
	return batch
}

func TestWriteAndReadBatch(t *testing.T) {
	dir := t.TempDir()
	batch := testBatch("ttt-1", 5)
	path, size, err := WriteBatch(dir, "collector-1_ep-0003", batch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "collector-1_ep-0003"+Extension), path)
	assert.Greater(t, size, int64(0))

	// No staging file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, IsStaging(entries[0].Name()))

	got, err := ReadBatch(path, FormatVersion, "ttt-1")
	require.NoError(t, err)
	require.Len(t, got.Trajectories, 1)
	assert.Equal(t, 5, got.NumSteps())
	assert.NotEmpty(t, got.Trajectories[0].ID)
	assert.Equal(t, FormatVersion, got.Trajectories[0].FormatVersion)
	assert.Equal(t, "ttt-1", got.Trajectories[0].EnvVersion)
}

func TestVersionMismatchIsSkipped(t *testing.T) {
	dir := t.TempDir()
	good, _, err := WriteBatch(dir, "good", testBatch("ttt-1", 3))
	require.NoError(t, err)
	old, _, err := WriteBatch(dir, "old", testBatch("ttt-0", 4))
	require.NoError(t, err)

	_, err = ReadBatch(old, FormatVersion, "ttt-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionMismatch))

	// good is listed twice: sampling with replacement.
	trajectories, skipped, err := ReadAll([]string{good, old, good}, FormatVersion, "ttt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, trajectories, 2)
}

func TestListIgnoresStagedBatches(t *testing.T) {
	dir := t.TempDir()
	_, _, err := WriteBatch(dir, "b", testBatch("v", 1))
	require.NoError(t, err)
	_, _, err = WriteBatch(dir, "a", testBatch("v", 1))
	require.NoError(t, err)

	// A crashed writer leaves its staging file behind.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c"+Extension+stagingSuffix), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a"+Extension), filepath.Join(dir, "b"+Extension)}, paths)

	paths, err = List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReadCorruptBatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken"+Extension)
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	_, _, err := ReadAll([]string{path}, FormatVersion, "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrVersionMismatch))
}

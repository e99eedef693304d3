package checkpoints

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]Store {
	ctx := context.Background()
	stores := make(map[string]Store)
	for _, backend := range []string{BackendDir, BackendSQLite, BackendMemory} {
		s, err := Open(ctx, backend, t.TempDir())
		require.NoError(t, err, backend)
		t.Cleanup(func() { _ = Close(s) })
		stores[backend] = s
	}
	return stores
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	for backend, s := range openAll(t) {
		latest, err := s.Latest(ctx)
		require.NoError(t, err, backend)
		assert.Nil(t, latest, backend)

		for _, id := range []int{2, 5, 3} {
			require.NoError(t, s.Put(ctx, Record{CycleID: id, Weights: []byte{byte(id)}}), backend)
		}
		latest, err = s.Latest(ctx)
		require.NoError(t, err, backend)
		require.NotNil(t, latest, backend)
		assert.Equal(t, 5, latest.CycleID, backend)
		assert.Equal(t, []byte{5}, latest.Weights, backend)

		ids, err := s.List(ctx)
		require.NoError(t, err, backend)
		assert.Equal(t, []int{2, 3, 5}, ids, backend)
	}
}

func TestPutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	for backend, s := range openAll(t) {
		require.NoError(t, s.Put(ctx, Record{CycleID: 7, Weights: []byte("first")}), backend)
		err := s.Put(ctx, Record{CycleID: 7, Weights: []byte("second")})
		require.Error(t, err, backend)
		assert.True(t, errors.Is(err, ErrExists), "%s: %v", backend, err)
		latest, err := s.Latest(ctx)
		require.NoError(t, err, backend)
		assert.Equal(t, []byte("first"), latest.Weights, backend)

		assert.Error(t, s.Put(ctx, Record{CycleID: -1}), backend)
	}
}

func TestDirStoreIgnoresOtherFiles(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Record{CycleID: 1, Weights: []byte("one")}))
	for _, name := range []string{"notes.ckpt", "12.ckpt_tmp", "99.txt", CurrentName} {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir, name), []byte("x"), 0o644))
	}
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
}

func TestDirStoreCurrent(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	current, err := s.LoadCurrent()
	require.NoError(t, err)
	assert.Nil(t, current)

	require.NoError(t, s.SaveCurrent([]byte("v1")))
	require.NoError(t, s.SaveCurrent([]byte("v2")))
	current, err = s.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), current)
	backup, err := os.ReadFile(filepath.Join(s.Dir, CurrentName+"~"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), backup)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "tape", t.TempDir())
	assert.Error(t, err)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageListsOnlyJSONSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"customs_decree.json", "customs_act.json", "notes.txt", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.json"), 0o755))

	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"customs_act.json", "customs_decree.json"}, names)
}

func TestLocalStorageRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customs_act.json"), []byte(`{"law_name":"관세법"}`), 0o644))

	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	data, err := s.Read(context.Background(), "customs_act.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"law_name":"관세법"}`, string(data))

	_, err = s.Read(context.Background(), "missing.json")
	assert.ErrorContains(t, err, "not found")
}

func TestNewLocalStorageValidatesPath(t *testing.T) {
	_, err := NewLocalStorage(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	_, err = NewLocalStorage(file)
	assert.Error(t, err)
}

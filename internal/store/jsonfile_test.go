package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Key  int    `json:"_key"`
	Name string `json:"name"`
}

func newTestFile(t *testing.T, shape Shape) (*JSONFile, string) {
	t.Helper()
	dir := t.TempDir()
	f := NewJSONFile(filepath.Join(dir, "senders.json"), filepath.Join(dir, "quarantine"), shape)
	f.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f, dir
}

func quarantined(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestReadMissing(t *testing.T) {
	f, dir := newTestFile(t, Array)

	var got []record
	err := f.Read(&got)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
	assert.Empty(t, quarantined(t, dir))
}

func TestWriteThenRead(t *testing.T) {
	f, dir := newTestFile(t, Array)
	want := []record{{Key: 1, Name: "Acme"}, {Key: 2, Name: "Bravo"}}

	require.NoError(t, f.Write(want))

	var got []record
	require.NoError(t, f.Read(&got))
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backup file may survive a write")
	assert.Equal(t, "senders.json", entries[0].Name())
}

func TestReadQuarantinesBadDocuments(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, path string)
	}{
		{"garbage", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))
		}},
		{"truncated", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(`[{"_key":1,"name":"Ac`), 0o644))
		}},
		{"object instead of array", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(`{"_key":1}`), 0o644))
		}},
		{"wrong field type", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(`[{"_key":"one"}]`), 0o644))
		}},
		{"empty file", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, nil, 0o644))
		}},
		{"directory", func(t *testing.T, path string) {
			require.NoError(t, os.Mkdir(path, 0o755))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, dir := newTestFile(t, Array)
			tt.prepare(t, f.Path())

			got := []record{{Key: 9, Name: "untouched"}}
			err := f.Read(&got)

			require.ErrorIs(t, err, ErrQuarantined)
			assert.Equal(t, []record{{Key: 9, Name: "untouched"}}, got)

			_, statErr := os.Stat(f.Path())
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "document must be moved away")

			names := quarantined(t, dir)
			require.Len(t, names, 1)
			assert.True(t, strings.HasPrefix(names[0], "senders.json.20250301T120000-"), names[0])
		})
	}
}

func TestReadIgnoresUnknownFields(t *testing.T) {
	f, _ := newTestFile(t, Array)
	require.NoError(t, os.WriteFile(f.Path(), []byte(` [{"_key":4,"name":"Acme","legacy":true}]`), 0o644))

	var got []record
	require.NoError(t, f.Read(&got))
	assert.Equal(t, []record{{Key: 4, Name: "Acme"}}, got)
}

func TestWriteFailureRestoresPrevious(t *testing.T) {
	f, dir := newTestFile(t, Array)
	require.NoError(t, f.Write([]record{{Key: 1, Name: "Acme"}}))
	before, err := os.ReadFile(f.Path())
	require.NoError(t, err)

	f.writeFile = func(name string, data []byte, perm os.FileMode) error {
		// Simulate a crash halfway through the write.
		_ = os.WriteFile(name, data[:len(data)/2], perm)
		return errors.New("disk full")
	}

	err = f.Write([]record{{Key: 1, Name: "Acme"}, {Key: 2, Name: "Bravo"}})
	require.ErrorIs(t, err, ErrWriteFailed)

	after, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "backup must be cleaned up")
}

func TestWriteFailureWithoutPreviousLeavesNothing(t *testing.T) {
	f, _ := newTestFile(t, Array)
	f.writeFile = func(name string, data []byte, perm os.FileMode) error {
		_ = os.WriteFile(name, data[:1], perm)
		return errors.New("disk full")
	}

	err := f.Write([]record{{Key: 1}})
	require.Error(t, err)

	_, statErr := os.Stat(f.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	f := NewJSONFile(filepath.Join(dir, "nested", "data", "products.json"), filepath.Join(dir, "quarantine"), Array)

	require.NoError(t, f.Write([]record{}))

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestObjectDocument(t *testing.T) {
	f, dir := newTestFile(t, Object)
	type prefs struct {
		Currency string `json:"currency"`
	}

	require.NoError(t, f.Write(prefs{Currency: "EUR"}))
	var got prefs
	require.NoError(t, f.Read(&got))
	assert.Equal(t, "EUR", got.Currency)

	require.NoError(t, os.WriteFile(f.Path(), []byte(`["EUR"]`), 0o644))
	assert.ErrorIs(t, f.Read(&got), ErrQuarantined)
	assert.Len(t, quarantined(t, dir), 1)
}

func TestExplicitQuarantine(t *testing.T) {
	f, dir := newTestFile(t, Array)
	require.NoError(t, f.Write([]record{{Key: 0}}))

	err := f.Quarantine(errors.New("record with key 0"))

	assert.ErrorIs(t, err, ErrQuarantined)
	assert.Contains(t, err.Error(), "record with key 0")
	assert.Len(t, quarantined(t, dir), 1)
}

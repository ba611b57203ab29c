package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "logs", "log.jsonl")
	rec, err := NewFileRecorder(p)
	require.NoError(t, err)

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), SessionID: "a", Sender: "user", Text: "hi"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), SessionID: "a", Sender: "bot", Text: "hello", Model: "gpt-4"}
	require.NoError(t, rec.AppendEvent(ev1))
	require.NoError(t, rec.AppendEvent(ev2))

	events, err := rec.LoadEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ev1, events[0])
	assert.Equal(t, ev2, events[1])

	st, err := os.Stat(p)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}

func TestFileRecorder_SkipsGarbageLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(p, []byte("not json\n\n{\"sender\":\"bot\",\"text\":\"ok\"}\n"), 0o644))

	rec, err := NewFileRecorder(p)
	require.NoError(t, err)
	events, err := rec.LoadEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
}

func TestWriteExport_ReplacesFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteExport(dir, "sess", "history.csv", []byte("user\tone"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sess", "history.csv"), path)

	_, err = WriteExport(dir, "sess", "history.csv", []byte("user\ttwo"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "user\ttwo", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "sess"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

// SPDX-License-Identifier: MIT

package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recordings.json")

	doc := RecordingsDoc{Recordings: []Recording{
		{ID: "a", Name: "Cam A", RTSPURL: "rtsp://h/s", Duration: 30,
			CreatedAt: time.Unix(1000, 0).UTC(), UpdatedAt: time.Unix(1000, 0).UTC()},
	}}

	s1 := New[RecordingsDoc](path, nil, nil)
	require.NoError(t, s1.Put(doc))

	s2 := New[RecordingsDoc](path, nil, nil)
	loaded := s2.Get()
	assert.Equal(t, doc, loaded)
}

func TestStoreMissingFileYieldsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	s := New[RecordingsDoc](path, nil, nil)
	got := s.Get()
	assert.Equal(t, RecordingsDoc{}, got)
}

func TestStoreCorruptFileYieldsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	calledDefault := false
	s := New[RecordingsDoc](path, nil, func() RecordingsDoc {
		calledDefault = true
		return RecordingsDoc{Recordings: []Recording{{ID: "default"}}}
	})
	got := s.Get()
	assert.True(t, calledDefault)
	assert.Equal(t, "default", got.Recordings[0].ID)
}

func TestPutCacheDoesNotTouchDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recordings.json")

	s := New[RecordingsDoc](path, nil, nil)
	s.PutCache(RecordingsDoc{Recordings: []Recording{{ID: "hot"}}})

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "PutCache must not write through to disk")
	assert.True(t, s.Dirty())

	require.NoError(t, s.Flush())
	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.False(t, s.Dirty())
}

func TestRecordingPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"id":"x","name":"n","rtspUrl":"rtsp://h/s","duration":5,
		"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z",
		"futureField":"kept-across-rewrites"}`)

	var rec Recording
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, json.RawMessage(`"kept-across-rewrites"`), rec.Extra["futureField"])

	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, json.RawMessage(`"kept-across-rewrites"`), roundTripped["futureField"])
}

func TestRecordingRepoCRUD(t *testing.T) {
	dir := t.TempDir()
	repo := NewRecordingRepo(filepath.Join(dir, "recordings.json"), nil)

	require.NoError(t, repo.Insert(Recording{ID: "1", Name: "one"}))
	require.NoError(t, repo.Insert(Recording{ID: "2", Name: "two"}))

	all := repo.List()
	assert.Len(t, all, 2)

	require.NoError(t, repo.Update("1", func(r *Recording) { r.Name = "ONE" }))
	got, ok := repo.Get("1")
	require.True(t, ok)
	assert.Equal(t, "ONE", got.Name)
	assert.True(t, got.UpdatedAt.After(time.Time{}))

	err := repo.Update("missing", func(r *Recording) {})
	assert.Error(t, err)

	require.NoError(t, repo.Delete("2"))
	all = repo.List()
	assert.Len(t, all, 1)
}

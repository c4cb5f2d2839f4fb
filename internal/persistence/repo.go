// SPDX-License-Identifier: MIT

package persistence

import (
	"log/slog"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/coreerr"
)

// RecordingRepo is the Recordings document viewed as a keyed collection.
type RecordingRepo struct {
	store *Store[RecordingsDoc]
}

// NewRecordingRepo opens (without yet reading) the recordings document at path.
func NewRecordingRepo(path string, logger *slog.Logger) *RecordingRepo {
	return &RecordingRepo{store: New(path, logger, func() RecordingsDoc { return RecordingsDoc{} })}
}

// List returns a copy of all recordings.
func (r *RecordingRepo) List() []Recording {
	doc := r.store.Get()
	out := make([]Recording, len(doc.Recordings))
	copy(out, doc.Recordings)
	return out
}

// Get returns one recording by id.
func (r *RecordingRepo) Get(id string) (Recording, bool) {
	for _, rec := range r.store.Get().Recordings {
		if rec.ID == id {
			return rec, true
		}
	}
	return Recording{}, false
}

// Insert adds a new recording durably.
func (r *RecordingRepo) Insert(rec Recording) error {
	var out error
	r.store.Mutate(func(d *RecordingsDoc) {
		d.Recordings = append(d.Recordings, rec)
	})
	out = r.store.Flush()
	return out
}

// Update applies fn to the recording with the given id and flushes durably.
// Returns coreerr.NotFound if no such recording exists.
func (r *RecordingRepo) Update(id string, fn func(*Recording)) error {
	found := false
	r.store.Mutate(func(d *RecordingsDoc) {
		for i := range d.Recordings {
			if d.Recordings[i].ID == id {
				fn(&d.Recordings[i])
				d.Recordings[i].UpdatedAt = now()
				found = true
				return
			}
		}
	})
	if !found {
		return coreerr.NewNotFound("recording", id)
	}
	return r.store.Flush()
}

// UpdateCache is Update's cache-only counterpart, used for hot-path
// progress bookkeeping that does not need to survive a crash.
func (r *RecordingRepo) UpdateCache(id string, fn func(*Recording)) {
	r.store.Mutate(func(d *RecordingsDoc) {
		for i := range d.Recordings {
			if d.Recordings[i].ID == id {
				fn(&d.Recordings[i])
				return
			}
		}
	})
}

// Delete removes a recording row durably.
func (r *RecordingRepo) Delete(id string) error {
	found := false
	r.store.Mutate(func(d *RecordingsDoc) {
		out := d.Recordings[:0]
		for _, rec := range d.Recordings {
			if rec.ID == id {
				found = true
				continue
			}
			out = append(out, rec)
		}
		d.Recordings = out
	})
	if !found {
		return coreerr.NewNotFound("recording", id)
	}
	return r.store.Flush()
}

// Flush forces any cache-only mutations to disk.
func (r *RecordingRepo) Flush() error { return r.store.Flush() }

// StreamRepo is the SavedStreams document viewed as a keyed collection.
type StreamRepo struct {
	store *Store[StreamsDoc]
}

// NewStreamRepo opens the saved-streams document at path.
func NewStreamRepo(path string, logger *slog.Logger) *StreamRepo {
	return &StreamRepo{store: New(path, logger, func() StreamsDoc { return StreamsDoc{} })}
}

func (r *StreamRepo) List() []SavedStream {
	doc := r.store.Get()
	out := make([]SavedStream, len(doc.Streams))
	copy(out, doc.Streams)
	return out
}

func (r *StreamRepo) Get(id string) (SavedStream, bool) {
	for _, s := range r.store.Get().Streams {
		if s.ID == id {
			return s, true
		}
	}
	return SavedStream{}, false
}

func (r *StreamRepo) Insert(s SavedStream) error {
	r.store.Mutate(func(d *StreamsDoc) {
		d.Streams = append(d.Streams, s)
	})
	return r.store.Flush()
}

func (r *StreamRepo) Update(id string, fn func(*SavedStream)) error {
	found := false
	r.store.Mutate(func(d *StreamsDoc) {
		for i := range d.Streams {
			if d.Streams[i].ID == id {
				fn(&d.Streams[i])
				d.Streams[i].UpdatedAt = now()
				found = true
				return
			}
		}
	})
	if !found {
		return coreerr.NewNotFound("saved stream", id)
	}
	return r.store.Flush()
}

func (r *StreamRepo) Delete(id string) error {
	found := false
	r.store.Mutate(func(d *StreamsDoc) {
		out := d.Streams[:0]
		for _, s := range d.Streams {
			if s.ID == id {
				found = true
				continue
			}
			out = append(out, s)
		}
		d.Streams = out
	})
	if !found {
		return coreerr.NewNotFound("saved stream", id)
	}
	return r.store.Flush()
}

// now is a var so tests can freeze time.
var now = time.Now

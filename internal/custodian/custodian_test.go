// SPDX-License-Identifier: MIT

package custodian

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRepo(t *testing.T) *persistence.RecordingRepo {
	t.Helper()
	dir := t.TempDir()
	return persistence.NewRecordingRepo(filepath.Join(dir, "recordings.json"), nil)
}

func completedRecording(id, path string, completedAt time.Time) persistence.Recording {
	return persistence.Recording{
		ID:          id,
		Name:        id,
		Success:     persistence.SuccessTrue,
		OutputPath:  path,
		CreatedAt:   completedAt,
		UpdatedAt:   completedAt,
		CompletedAt: &completedAt,
	}
}

func TestRetentionPurgeDeletesOnlyExpired(t *testing.T) {
	dir := t.TempDir()
	repo := newRepo(t)
	now := time.Now()
	ages := []int{1, 3, 8, 10, 30}
	for i, age := range ages {
		id := "rec" + string(rune('a'+i))
		path := writeFile(t, dir, id+".mp4", 10)
		if err := repo.Insert(completedRecording(id, path, now.AddDate(0, 0, -age))); err != nil {
			t.Fatal(err)
		}
	}

	c := New(Deps{
		Repo:     repo,
		Settings: func() settings.Settings { return settings.Settings{AutoDeleteDays: 7} },
	})

	res := c.sweep()
	if res.DeletedOld != 3 {
		t.Fatalf("deleted = %d, want 3", res.DeletedOld)
	}
	if len(repo.List()) != 2 {
		t.Fatalf("remaining rows = %d, want 2", len(repo.List()))
	}
}

func TestQuotaPurgeDeletesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	repo := newRepo(t)
	base := time.Now().Add(-time.Hour)
	sizesMB := []int{600, 500, 500}
	const mb = 1024 * 1024
	for i, sizeMB := range sizesMB {
		id := "rec" + string(rune('a'+i))
		path := writeFile(t, dir, id+".mp4", sizeMB*mb)
		completedAt := base.Add(time.Duration(i) * time.Minute)
		if err := repo.Insert(completedRecording(id, path, completedAt)); err != nil {
			t.Fatal(err)
		}
	}

	c := New(Deps{
		Repo:     repo,
		Settings: func() settings.Settings { return settings.Settings{MaxStorageGB: 1} },
	})

	res := c.sweep()
	if res.DeletedForSpace != 1 {
		t.Fatalf("deletedForSpace = %d, want 1", res.DeletedForSpace)
	}
	if remaining := len(repo.List()); remaining != 2 {
		t.Fatalf("remaining rows = %d, want 2", remaining)
	}
	if _, ok := repo.Get("reca"); ok {
		t.Fatal("oldest recording should have been deleted")
	}
}

func TestSweepIsIdempotentWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	repo := newRepo(t)
	path := writeFile(t, dir, "a.mp4", 10)
	if err := repo.Insert(completedRecording("a", path, time.Now())); err != nil {
		t.Fatal(err)
	}

	c := New(Deps{
		Repo:     repo,
		Settings: func() settings.Settings { return settings.Settings{} },
	})

	first := c.sweep()
	second := c.sweep()
	if first != second {
		t.Fatalf("sweep not idempotent: %+v != %+v", first, second)
	}
}

func TestRunNowInlineWhenServeNotRunning(t *testing.T) {
	dir := t.TempDir()
	repo := newRepo(t)
	writeFile(t, dir, "a.mp4", 10)

	c := New(Deps{
		Repo:     repo,
		Settings: func() settings.Settings { return settings.Settings{} },
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res := c.RunNow(ctx)
	if res.DeletedOld != 0 || res.DeletedForSpace != 0 {
		t.Fatalf("unexpected deletions on empty policy: %+v", res)
	}
}

// SPDX-License-Identifier: MIT

// Package custodian implements the Storage Custodian described in
// spec.md 4.6: a periodic sweep that enforces age-based retention and a
// soft disk-usage cap over the archive of completed recordings.
//
// It runs as a suture.Service alongside the per-Recording supervisors
// registered in internal/registry, on the schedule spec.md 4.6 specifies:
// an initial sweep 5s after arming, every 3h thereafter, plus an extra
// sweep 1s after any recording's successful completion.
package custodian

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

const (
	initialDelay   = 5 * time.Second
	steadyInterval = 3 * time.Hour
	completionLag  = 1 * time.Second
	statWorkers    = 4
)

// Result reports one sweep's effect, per spec.md 4.6 step 3.
type Result struct {
	DeletedOld      int
	DeletedForSpace int
	CurrentStorageGB float64
}

// Deps are the collaborators a Custodian needs.
type Deps struct {
	Repo     *persistence.RecordingRepo
	Settings func() settings.Settings
	Logger   *slog.Logger
}

// Custodian runs the periodic sweep. Construct with New and run it with
// Serve; trigger an out-of-band sweep with NotifyCompletion or RunNow.
type Custodian struct {
	deps Deps

	completed chan struct{}
	runNow    chan chan Result
}

// New builds a Custodian bound to deps.
func New(deps Deps) *Custodian {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Custodian{
		deps:      deps,
		completed: make(chan struct{}, 1),
		runNow:    make(chan chan Result),
	}
}

// NotifyCompletion schedules a sweep completionLag from now, per spec.md
// 4.6's "+1s after any successful recording completion". Non-blocking: a
// pending notification already queued is not duplicated.
func (c *Custodian) NotifyCompletion() {
	select {
	case c.completed <- struct{}{}:
	default:
	}
}

// RunNow triggers an immediate sweep and returns its result, for the
// command surface's "run storage cleanup" operation (spec.md 6). Safe to
// call whether or not Serve is currently running a scheduled sweep.
func (c *Custodian) RunNow(ctx context.Context) Result {
	reply := make(chan Result, 1)
	select {
	case c.runNow <- reply:
		select {
		case r := <-reply:
			return r
		case <-ctx.Done():
			return Result{}
		}
	case <-ctx.Done():
		return Result{}
	default:
		// Serve is not running (e.g. in tests exercising the surface
		// directly): perform the sweep inline instead of blocking forever.
		return c.sweep()
	}
}

// Serve runs the sweep schedule until ctx is cancelled, satisfying
// suture.Service.
func (c *Custodian) Serve(ctx context.Context) error {
	initial := time.NewTimer(initialDelay)
	defer initial.Stop()
	steady := time.NewTicker(steadyInterval)
	defer steady.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-initial.C:
			c.deps.Logger.Info("custodian: initial sweep")
			c.sweep()
		case <-steady.C:
			c.deps.Logger.Info("custodian: scheduled sweep")
			c.sweep()
		case <-c.completed:
			select {
			case <-time.After(completionLag):
				c.deps.Logger.Debug("custodian: post-completion sweep")
				c.sweep()
			case <-ctx.Done():
				return nil
			}
		case reply := <-c.runNow:
			reply <- c.sweep()
		}
	}
}

// sweep performs retention purge then quota purge, in that order, per
// spec.md 4.6.
func (c *Custodian) sweep() Result {
	s := c.deps.Settings()
	var res Result

	if s.AutoDeleteDays > 0 {
		res.DeletedOld = c.retentionPurge(s.AutoDeleteDays)
	}
	if s.MaxStorageGB > 0 {
		deleted, remaining := c.quotaPurge(s.MaxStorageGB)
		res.DeletedForSpace = deleted
		res.CurrentStorageGB = remaining
	} else {
		res.CurrentStorageGB = c.totalStorageGB()
	}
	return res
}

// retentionPurge implements spec.md 4.6 step 1: delete the file and row of
// every successful recording older than the retention window. A recording
// whose file cannot be deleted is retained in Persistence rather than
// orphaning the row (spec.md 7's StorageIOError handling).
func (c *Custodian) retentionPurge(days int) int {
	cutoff := time.Now().AddDate(0, 0, -days)
	deleted := 0
	for _, rec := range c.deps.Repo.List() {
		if rec.Success != persistence.SuccessTrue || rec.CompletedAt == nil {
			continue
		}
		if !rec.CompletedAt.Before(cutoff) {
			continue
		}
		if rec.OutputPath != "" {
			if err := os.Remove(rec.OutputPath); err != nil && !os.IsNotExist(err) {
				c.deps.Logger.Error("custodian: retention delete failed", "id", rec.ID, "path", rec.OutputPath, "error", err)
				continue
			}
		}
		if err := c.deps.Repo.Delete(rec.ID); err != nil {
			c.deps.Logger.Error("custodian: retention row delete failed", "id", rec.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// quotaPurge implements spec.md 4.6 step 2: if total on-disk size across
// successful recordings exceeds capGB, delete the chronologically oldest
// (by completedAt) until under cap or the list is exhausted. The stat pass
// over every candidate is fanned out with errgroup, bounded at statWorkers;
// deletion stays sequential below since it is single-writer against
// Persistence.
func (c *Custodian) quotaPurge(capGB int) (deleted int, remainingGB float64) {
	type sized struct {
		rec  persistence.Recording
		size int64
	}

	candidates := c.deps.Repo.List()
	stats := make([]sized, len(candidates))
	found := make([]bool, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(statWorkers)
	for i, rec := range candidates {
		if rec.Success != persistence.SuccessTrue || rec.OutputPath == "" {
			continue
		}
		i, rec := i, rec
		g.Go(func() error {
			fi, err := os.Stat(rec.OutputPath)
			if err != nil {
				return nil
			}
			stats[i] = sized{rec: rec, size: fi.Size()}
			found[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var items []sized
	var total int64
	for i, ok := range found {
		if !ok {
			continue
		}
		items = append(items, stats[i])
		total += stats[i].size
	}

	capBytes := int64(capGB) * 1024 * 1024 * 1024
	if total <= capBytes {
		return 0, bytesToGB(total)
	}

	sort.Slice(items, func(i, j int) bool {
		ci, cj := items[i].rec.CompletedAt, items[j].rec.CompletedAt
		if ci == nil || cj == nil {
			return false
		}
		return ci.Before(*cj)
	})

	for _, it := range items {
		if total <= capBytes {
			break
		}
		if err := os.Remove(it.rec.OutputPath); err != nil && !os.IsNotExist(err) {
			c.deps.Logger.Error("custodian: quota delete failed", "id", it.rec.ID, "path", it.rec.OutputPath, "error", err)
			continue
		}
		if err := c.deps.Repo.Delete(it.rec.ID); err != nil {
			c.deps.Logger.Error("custodian: quota row delete failed", "id", it.rec.ID, "error", err)
			continue
		}
		total -= it.size
		deleted++
	}
	return deleted, bytesToGB(total)
}

// CurrentStorageGB reports current on-disk usage across successful
// recordings without enforcing any cap or deleting anything, for the
// read-only "get storage stats" command (distinct from RunNow, which
// performs a real sweep).
func (c *Custodian) CurrentStorageGB() float64 {
	return c.totalStorageGB()
}

// totalStorageGB reports current usage without enforcing any cap, for the
// "get storage stats" command when no quota is configured.
func (c *Custodian) totalStorageGB() float64 {
	var total int64
	for _, rec := range c.deps.Repo.List() {
		if rec.Success != persistence.SuccessTrue || rec.OutputPath == "" {
			continue
		}
		if fi, err := os.Stat(rec.OutputPath); err == nil {
			total += fi.Size()
		}
	}
	return bytesToGB(total)
}

func bytesToGB(b int64) float64 {
	return float64(b) / (1024 * 1024 * 1024)
}

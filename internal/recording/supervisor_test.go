// SPDX-License-Identifier: MIT

package recording

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/registry"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/gnimrodg/rtsp-recorder/internal/transcoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber answers consecutive Probe calls from a fixed sequence,
// repeating the last entry once exhausted.
type scriptedProber struct {
	mu      sync.Mutex
	results []rtsp.Status
	calls   int
}

func (p *scriptedProber) Probe(ctx context.Context, rawURL string, timeout time.Duration) rtsp.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	p.calls++
	return rtsp.Result{Status: p.results[idx]}
}

func (p *scriptedProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// writeFakeTranscoder writes a shell script standing in for the
// transcoder binary. It understands two invocation shapes: a plain
// capture call (writes placeholder content to the last argument, exits
// with the code recorded in FAKE_EXIT_CODES for this invocation number,
// tracked via FAKE_COUNT_FILE) and a concat-demuxer stitch call (-f
// concat ...), which it honors for real by concatenating the referenced
// segment files.
func writeFakeTranscoder(t *testing.T, exitCodes string) (path, countFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a shell script, not supported on windows")
	}
	dir := t.TempDir()
	countFile = filepath.Join(dir, "count")
	path = filepath.Join(dir, "fake-transcoder.sh")
	script := `#!/bin/sh
if [ "$1" = "-f" ] && [ "$2" = "concat" ]; then
  listfile="$6"
  for a in "$@"; do out="$a"; done
  listdir=$(dirname "$listfile")
  : > "$out"
  while IFS= read -r line; do
    name=$(echo "$line" | sed -n "s/^file '\(.*\)'$/\1/p")
    if [ -n "$name" ]; then
      cat "$listdir/$name" >> "$out"
    fi
  done < "$listfile"
  exit 0
fi

count_file="$FAKE_COUNT_FILE"
n=$(cat "$count_file" 2>/dev/null || echo 0)
n=$((n+1))
echo "$n" > "$count_file"
for a in "$@"; do out="$a"; done
echo "segment-${n}-0123456789" > "$out"
sleep 0.15
code=$(echo "$FAKE_EXIT_CODES" | cut -d, -f"$n")
if [ -z "$code" ]; then
  code=0
fi
exit "$code"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o750))
	t.Setenv("FAKE_EXIT_CODES", exitCodes)
	t.Setenv("FAKE_COUNT_FILE", countFile)
	return path, countFile
}

func testSettings(bin string) settings.Settings {
	s := settings.Defaults()
	s.TranscoderPath = bin
	s.ReconnectDelay = 1
	s.ReconnectAttempts = 10
	return s
}

func awaitTerminal(t *testing.T, sup *Supervisor, within time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if st := sup.Snapshot().Status; st.Terminal() {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("recording did not reach a terminal status within %s, last status %q", within, sup.Snapshot().Status)
	return ""
}

func newTestDeps(t *testing.T, bin string, prober rtsp.Prober) (Deps, *persistence.RecordingRepo) {
	t.Helper()
	dir := t.TempDir()
	repoDir := t.TempDir()
	repo := persistence.NewRecordingRepo(filepath.Join(repoDir, "recordings.json"), nil)
	deps := Deps{
		Driver:    transcoder.New(transcoder.Config{BinaryPath: bin}),
		Prober:    prober,
		Repo:      repo,
		Registry:  registry.New[*Supervisor](),
		OutputDir: dir,
	}
	return deps, repo
}

func TestSupervisorHappyPath(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "0")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusLive}}
	deps, repo := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "A", URL: "rtsp://h/s", StartTime: time.Now().Add(50 * time.Millisecond), Duration: 100 * time.Millisecond}
	sup, err := New("rec-happy", sched, testSettings(bin), deps)
	require.NoError(t, err)

	repo.Insert(persistence.Recording{ID: "rec-happy", Name: "A", RTSPURL: sched.URL})

	go sup.Serve(context.Background())

	final := awaitTerminal(t, sup, 5*time.Second)
	assert.Equal(t, StatusCompleted, final)

	snap := sup.Snapshot()
	assert.Len(t, snap.AttemptPaths, 1)

	rec, ok := repo.Get("rec-happy")
	require.True(t, ok)
	assert.Equal(t, persistence.SuccessTrue, rec.Success)
	assert.Equal(t, filepath.Join(deps.OutputDir, "A_rec-happy.mp4"), rec.OutputPath)
}

func TestSupervisorWaitsForLiveness(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "0")
	prober := &scriptedProber{results: []rtsp.Status{
		rtsp.StatusNotFound, rtsp.StatusNotFound, rtsp.StatusNotFound, rtsp.StatusLive,
	}}
	deps, _ := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "B", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-wait", sched, testSettings(bin), deps)
	require.NoError(t, err)

	go sup.Serve(context.Background())

	final := awaitTerminal(t, sup, 8*time.Second)
	assert.Equal(t, StatusCompleted, final)
	assert.GreaterOrEqual(t, prober.callCount(), 4)
}

func TestSupervisorMidCaptureDropRetryStitch(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "1,0")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusLive}}
	deps, repo := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "C", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-retry", sched, testSettings(bin), deps)
	require.NoError(t, err)

	repo.Insert(persistence.Recording{ID: "rec-retry", Name: "C", RTSPURL: sched.URL})

	go sup.Serve(context.Background())

	final := awaitTerminal(t, sup, 8*time.Second)
	assert.Equal(t, StatusCompleted, final)

	rec, ok := repo.Get("rec-retry")
	require.True(t, ok)
	assert.Equal(t, persistence.SuccessTrue, rec.Success)
	require.NotEmpty(t, rec.OutputPath)

	info, err := os.Stat(rec.OutputPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	for _, p := range sup.Snapshot().AttemptPaths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "attempt file %s should be deleted after a successful stitch", p)
	}
}

func TestSupervisorExhaustedRetriesWithPartialData(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "1,1,1")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusLive}}
	deps, repo := newTestDeps(t, bin, prober)

	s := testSettings(bin)
	s.ReconnectAttempts = 2

	sched := Schedule{Name: "D", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-exhausted-partial", sched, s, deps)
	require.NoError(t, err)

	repo.Insert(persistence.Recording{ID: "rec-exhausted-partial", Name: "D", RTSPURL: sched.URL})

	go sup.Serve(context.Background())

	final := awaitTerminal(t, sup, 8*time.Second)
	assert.Equal(t, StatusCompleted, final)

	rec, ok := repo.Get("rec-exhausted-partial")
	require.True(t, ok)
	assert.NotEmpty(t, rec.ErrorMessage)
	assert.NotEmpty(t, rec.OutputPath)
}

func TestSupervisorExhaustedRetriesNoData(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusNotFound}}
	deps, repo := newTestDeps(t, bin, prober)

	s := testSettings(bin)
	s.ReconnectAttempts = 3

	sched := Schedule{Name: "E", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-failed", sched, s, deps)
	require.NoError(t, err)

	repo.Insert(persistence.Recording{ID: "rec-failed", Name: "E", RTSPURL: sched.URL})

	go sup.Serve(context.Background())

	final := awaitTerminal(t, sup, 8*time.Second)
	assert.Equal(t, StatusFailed, final)

	rec, ok := repo.Get("rec-failed")
	require.True(t, ok)
	assert.Equal(t, persistence.SuccessFalse, rec.Success)
	assert.Empty(t, rec.OutputPath)
	assert.Contains(t, rec.ErrorMessage, "live")
}

func TestSupervisorCancellationDuringProbeWait(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "0")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusNotFound}}
	deps, repo := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "F", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-cancel", sched, testSettings(bin), deps)
	require.NoError(t, err)

	repo.Insert(persistence.Recording{ID: "rec-cancel", Name: "F", RTSPURL: sched.URL})

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Serve(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()

	final := awaitTerminal(t, sup, 3*time.Second)
	assert.Equal(t, StatusCancelled, final)
	assert.Empty(t, sup.Snapshot().AttemptPaths, "no subprocess should ever have spawned")

	rec, ok := repo.Get("rec-cancel")
	require.True(t, ok)
	assert.Equal(t, persistence.SuccessFalse, rec.Success)
	assert.Equal(t, "cancelled", rec.ErrorMessage)
}

func TestSupervisorUpdateRejectedOnceStarting(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "0")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusNotFound}}
	deps, _ := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "G", URL: "rtsp://h/s", StartTime: time.Now(), Duration: 5 * time.Second}
	sup, err := New("rec-update", sched, testSettings(bin), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Serve(ctx)

	time.Sleep(100 * time.Millisecond)
	err = sup.Update(Schedule{Name: "G2", URL: sched.URL, StartTime: time.Now(), Duration: sched.Duration})
	assert.Error(t, err)
}

func TestSupervisorRegistrationEnforcesUniqueness(t *testing.T) {
	bin, _ := writeFakeTranscoder(t, "0")
	prober := &scriptedProber{results: []rtsp.Status{rtsp.StatusLive}}
	deps, _ := newTestDeps(t, bin, prober)

	sched := Schedule{Name: "H", URL: "rtsp://h/s", StartTime: time.Now().Add(time.Hour), Duration: time.Second}
	_, err := New("dup-id", sched, testSettings(bin), deps)
	require.NoError(t, err)

	_, err = New("dup-id", sched, testSettings(bin), deps)
	assert.Error(t, err)
}

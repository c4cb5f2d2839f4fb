// SPDX-License-Identifier: MIT

package diagnostics

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

func testSettings(t *testing.T, outputDir string) settings.Settings {
	t.Helper()
	s := settings.Defaults()
	s.OutputDir = outputDir
	s.TranscoderPath = "ls" // always resolvable via PATH, good enough to exercise LookPath
	return s
}

func TestRunQuickMode(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Options{Mode: ModeQuick, Settings: testSettings(t, dir)})
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Total != 3 {
		t.Fatalf("quick mode ran %d checks, want 3", report.Summary.Total)
	}
}

func TestRunFullModeAllChecksPresent(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Options{Mode: ModeFull, Settings: testSettings(t, dir), HTTPAddr: "127.0.0.1:0"})
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.Total != 7 {
		t.Fatalf("full mode ran %d checks, want 7", report.Summary.Total)
	}
	if report.SystemInfo == nil {
		t.Fatal("expected system info to be populated")
	}
}

func TestCheckOutputDirCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	r := NewRunner(Options{Settings: testSettings(t, dir)})
	result := r.checkOutputDir(context.Background())
	if result.Status != StatusOK {
		t.Fatalf("status = %v, want OK: %+v", result.Status, result)
	}
}

func TestCheckTranscoderBinaryMissing(t *testing.T) {
	s := testSettings(t, t.TempDir())
	s.TranscoderPath = "/nonexistent/definitely-not-a-binary"
	r := NewRunner(Options{Settings: s})
	result := r.checkTranscoderBinary(context.Background())
	if result.Status != StatusCritical {
		t.Fatalf("status = %v, want CRITICAL", result.Status)
	}
}

func TestCheckSettingsValidRejectsBadSettings(t *testing.T) {
	r := NewRunner(Options{Settings: settings.Settings{}})
	result := r.checkSettingsValid(context.Background())
	if result.Status != StatusCritical {
		t.Fatalf("status = %v, want CRITICAL for zero-value settings", result.Status)
	}
}

func TestPrintReportAndToJSON(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Options{Mode: ModeQuick, Settings: testSettings(t, dir)})
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty report output")
	}

	data, err := report.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}

func TestFormatBytesAndIsPortOpen(t *testing.T) {
	if got := formatBytes(512); got != "512 B" {
		t.Fatalf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(2048); got != "2.0 KiB" {
		t.Fatalf("formatBytes(2048) = %q", got)
	}
	if isPortOpen("127.0.0.1:1") {
		t.Fatal("expected privileged port 1 to be closed in test environment")
	}
}

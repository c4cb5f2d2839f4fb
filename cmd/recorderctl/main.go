// SPDX-License-Identifier: MIT

// Command recorderctl is the operator-facing client for recorderd: a
// thin HTTP client over internal/httpapi's routes, plus two commands
// (diagnose, update-transcoder) that run locally against the same
// internal/settings document recorderd reads, and an interactive "menu"
// subcommand built on internal/menu.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/diagnostics"
	"github.com/gnimrodg/rtsp-recorder/internal/menu"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/gnimrodg/rtsp-recorder/internal/updater"
)

var (
	Version   = "dev"
	GitCommit = "none"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	server := defaultServer
	if v := os.Getenv("RECORDERCTL_SERVER"); v != "" {
		server = v
	}
	args, server = extractServerFlag(args, server)

	if len(args) == 0 {
		return runHelp()
	}
	cmd, rest := args[0], args[1:]
	client := newAPIClient(server)

	switch cmd {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		fmt.Printf("recorderctl %s (%s)\n", Version, GitCommit)
		return nil
	case "list":
		return runList(client)
	case "get":
		return runGet(client, rest)
	case "create":
		return runCreate(client, rest)
	case "delete":
		return runDelete(client, rest)
	case "start":
		return runStart(client, rest)
	case "stop":
		return runStop(client, rest)
	case "stats":
		return runStats(client)
	case "streams":
		return runStreams(client, rest)
	case "probe":
		return runProbe(client, rest)
	case "storage":
		return runStorage(client, rest)
	case "settings":
		return runSettings(client, rest)
	case "diagnose":
		return runDiagnose(rest)
	case "update-transcoder":
		return runUpdateTranscoder(rest)
	case "menu":
		return runMenu(client)
	default:
		return fmt.Errorf("unknown command: %s (run 'recorderctl help' for usage)", cmd)
	}
}

// extractServerFlag pulls a leading "--server=URL" / "--server URL" out of
// args, letting every subcommand share the same connection flag without
// each one reparsing it.
func extractServerFlag(args []string, fallback string) ([]string, string) {
	out := make([]string, 0, len(args))
	server := fallback
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--server="):
			server = strings.TrimPrefix(args[i], "--server=")
		case args[i] == "--server" && i+1 < len(args):
			server = args[i+1]
			i++
		default:
			out = append(out, args[i])
		}
	}
	return out, server
}

func runHelp() error {
	fmt.Print(`recorderctl - operator client for the rtsp-recorder daemon

USAGE:
    recorderctl [--server URL] COMMAND [ARGS]

COMMANDS:
    list                          List all recordings
    get ID                        Show one recording
    create NAME URL START DUR     Schedule a recording (START=RFC3339, DUR=seconds)
    delete ID                     Delete a recording
    start ID                      Force a scheduled recording to start now
    stop ID                       Stop a running recording
    stats                         Show recording counts by status
    streams list|add|update|rm    Manage saved streams
    probe URL [TIMEOUT]           Probe a stream's liveness
    storage stats|cleanup         Show or trigger storage cleanup
    settings get|set KEY=VALUE    Show or update effective settings
    diagnose                      Run local self-check diagnostics
    update-transcoder [--check]   Check for/install a newer transcoder build
    menu                          Launch the interactive menu
    version                       Show version information

OPTIONS:
    --server URL   recorderd base URL (default %s, or $RECORDERCTL_SERVER)
`, defaultServer)
	return nil
}

func runList(c *apiClient) error {
	recs := c.ListRecordings()
	if len(recs) == 0 {
		fmt.Println("(no recordings)")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-20s  %-10s  %s\n", r.ID, r.Name, r.Status, r.RTSPURL)
	}
	return nil
}

func runGet(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl get ID")
	}
	r, err := c.GetRecording(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printJSON(r)
}

func runCreate(c *apiClient, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: recorderctl create NAME URL START DURATION_SECONDS")
	}
	start, err := time.Parse(time.RFC3339, args[2])
	if err != nil {
		return fmt.Errorf("invalid START (want RFC3339): %w", err)
	}
	dur, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid DURATION_SECONDS: %w", err)
	}
	r, err := c.CreateRecordingCtx(context.Background(), command.CreateInput{
		Name: args[0], RTSPURL: args[1], StartTime: start, Duration: time.Duration(dur) * time.Second,
	})
	if err != nil {
		return err
	}
	return printJSON(r)
}

func runDelete(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl delete ID")
	}
	if err := c.DeleteRecording(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("deleted")
	return nil
}

func runStart(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl start ID")
	}
	if err := c.StartRecording(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("started")
	return nil
}

func runStop(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl stop ID")
	}
	if err := c.StopRecording(args[0]); err != nil {
		return err
	}
	fmt.Println("stopped")
	return nil
}

func runStats(c *apiClient) error {
	st, err := c.GetRecordingStats(context.Background())
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runStreams(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl streams list|add|update|rm ...")
	}
	switch args[0] {
	case "list":
		for _, s := range c.ListSavedStreams() {
			fmt.Printf("%s  %-20s  %s\n", s.ID, s.Name, s.RTSPURL)
		}
		return nil
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: recorderctl streams add NAME URL [DESCRIPTION]")
		}
		desc := ""
		if len(args) > 3 {
			desc = strings.Join(args[3:], " ")
		}
		st, err := c.CreateSavedStream(context.Background(), command.SavedStreamInput{Name: args[1], RTSPURL: args[2], Description: desc})
		if err != nil {
			return err
		}
		return printJSON(st)
	case "update":
		if len(args) < 2 {
			return fmt.Errorf("usage: recorderctl streams update ID [NAME] [URL]")
		}
		in := command.SavedStreamInput{}
		if len(args) > 2 {
			in.Name = args[2]
		}
		if len(args) > 3 {
			in.RTSPURL = args[3]
		}
		st, err := c.UpdateSavedStream(context.Background(), args[1], in)
		if err != nil {
			return err
		}
		return printJSON(st)
	case "rm":
		if len(args) < 2 {
			return fmt.Errorf("usage: recorderctl streams rm ID")
		}
		if err := c.DeleteSavedStream(context.Background(), args[1]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	default:
		return fmt.Errorf("unknown streams subcommand: %s", args[0])
	}
}

func runProbe(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl probe URL [TIMEOUT_SECONDS]")
	}
	timeout := 5 * time.Second
	if len(args) > 1 {
		secs, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid TIMEOUT_SECONDS: %w", err)
		}
		timeout = time.Duration(secs) * time.Second
	}
	res := c.ProbeStream(context.Background(), args[0], timeout)
	if res.Err != nil {
		return res.Err
	}
	fmt.Println(res.Status)
	return nil
}

func runStorage(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl storage stats|cleanup")
	}
	switch args[0] {
	case "stats":
		return printJSON(c.GetStorageStats())
	case "cleanup":
		return printJSON(c.RunStorageCleanup(context.Background()))
	default:
		return fmt.Errorf("unknown storage subcommand: %s", args[0])
	}
}

func runSettings(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: recorderctl settings get|set KEY=VALUE ...")
	}
	switch args[0] {
	case "get":
		return printJSON(c.GetSettings())
	case "set":
		override, err := parseSettingsOverrides(args[1:])
		if err != nil {
			return err
		}
		updated, err := c.UpdateSettings(context.Background(), override)
		if err != nil {
			return err
		}
		return printJSON(updated)
	default:
		return fmt.Errorf("unknown settings subcommand: %s", args[0])
	}
}

// parseSettingsOverrides accepts KEY=VALUE pairs for the handful of fields
// most commonly tuned from the command line; anything more exotic is
// better done by editing the YAML config and restarting recorderd.
func parseSettingsOverrides(kvs []string) (settings.Settings, error) {
	var s settings.Settings
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return s, fmt.Errorf("invalid KEY=VALUE: %q", kv)
		}
		key, val := parts[0], parts[1]
		switch key {
		case "transcoder_path":
			s.TranscoderPath = val
		case "output_dir":
			s.OutputDir = val
		case "container":
			s.Container = settings.Container(val)
		case "hwaccel":
			s.HWAccel = settings.HWAccel(val)
		case "video_codec":
			s.VideoCodec = settings.VideoCodec(val)
		case "audio_codec":
			s.AudioCodec = settings.AudioCodec(val)
		case "rtsp_transport":
			s.RTSPTransport = settings.Transport(val)
		case "max_storage_gb":
			n, err := strconv.Atoi(val)
			if err != nil {
				return s, fmt.Errorf("max_storage_gb: %w", err)
			}
			s.MaxStorageGB = n
		case "auto_delete_days":
			n, err := strconv.Atoi(val)
			if err != nil {
				return s, fmt.Errorf("auto_delete_days: %w", err)
			}
			s.AutoDeleteDays = n
		default:
			return s, fmt.Errorf("unknown settings key: %s", key)
		}
	}
	return s, nil
}

func runDiagnose(args []string) error {
	s := settings.Defaults()
	for _, arg := range args {
		if strings.HasPrefix(arg, "--output-dir=") {
			s.OutputDir = strings.TrimPrefix(arg, "--output-dir=")
		}
	}
	r := diagnostics.NewRunner(diagnostics.Options{Mode: diagnostics.ModeFull, Settings: s, HTTPAddr: ":8080", Output: os.Stdout})
	report, err := r.Run(context.Background())
	if err != nil {
		return err
	}
	diagnostics.PrintReport(os.Stdout, report)
	if !report.Healthy {
		os.Exit(1)
	}
	return nil
}

func runUpdateTranscoder(args []string) error {
	checkOnly := false
	force := false
	for _, arg := range args {
		switch arg {
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		}
	}

	u := updater.New(updater.WithCurrentVersion(Version))
	ctx := context.Background()

	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}
	fmt.Println(updater.FormatUpdateInfo(info))
	if !info.UpdateAvailable || checkOnly {
		return nil
	}

	if !force {
		fmt.Print("Download and install update? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	binaryPath := os.Getenv("RECORDERCTL_TRANSCODER_PATH")
	if binaryPath == "" {
		binaryPath = settings.Defaults().TranscoderPath
	}

	progress := func(downloaded, total int64) {
		if total > 0 {
			fmt.Printf("\rdownloading: %d%%", int(float64(downloaded)/float64(total)*100))
		}
	}
	if err := u.Update(ctx, info, binaryPath, progress); err != nil {
		if u.HasBackup(binaryPath) {
			fmt.Println("\nupdate failed, rolling back...")
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				return fmt.Errorf("update failed (%w) and rollback failed (%w)", err, rbErr)
			}
		}
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Printf("\nupdated transcoder to %s\n", info.LatestVersion)
	return nil
}

func runMenu(c *apiClient) error {
	diag := diagnostics.NewRunner(diagnostics.Options{Mode: diagnostics.ModeQuick, Settings: c.GetSettings()})
	m := menu.CreateMainMenu(c, diag)
	return m.Display()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

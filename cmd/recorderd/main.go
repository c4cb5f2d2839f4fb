// SPDX-License-Identifier: MIT

// Command recorderd is the rtsp-recorder daemon: it owns the persisted
// documents, runs one recording.Supervisor per in-flight Recording under a
// suture.Supervisor root tree, runs the Storage Custodian alongside them,
// and serves internal/command's Surface over HTTP via internal/httpapi.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/custodian"
	"github.com/gnimrodg/rtsp-recorder/internal/health"
	"github.com/gnimrodg/rtsp-recorder/internal/httpapi"
	"github.com/gnimrodg/rtsp-recorder/internal/lock"
	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/recording"
	"github.com/gnimrodg/rtsp-recorder/internal/registry"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
	"github.com/gnimrodg/rtsp-recorder/internal/transcoder"
	"github.com/gnimrodg/rtsp-recorder/internal/util"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "recorderd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file (optional)")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		lockPath   = flag.String("lock-file", "/run/recorderd.lock", "single-instance lock file path")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	level := parseLogLevel(*logLevel)
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(slogLogger)
	zl := zerolog.New(os.Stdout).Level(zerologLevel(level)).With().Timestamp().Str("component", "httpapi").Logger()

	fl, err := lock.NewFileLock(*lockPath)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := fl.Acquire(lock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("acquire single-instance lock: %w", err)
	}
	defer func() {
		if err := fl.Release(); err != nil {
			slogLogger.Error("release lock failed", "err", err)
		}
	}()

	var opts []settings.LoaderOption
	if *configPath != "" {
		opts = append(opts, settings.WithYAMLFile(*configPath))
	}
	loader, err := settings.NewLoader(opts...)
	if err != nil {
		return fmt.Errorf("build settings loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.Paths.RecordingsDoc), filepath.Dir(cfg.Paths.SettingsDoc), filepath.Dir(cfg.Paths.StreamsDoc), cfg.Paths.LogDir, cfg.Settings.OutputDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	recRepo := persistence.NewRecordingRepo(cfg.Paths.RecordingsDoc, slogLogger)
	streamRepo := persistence.NewStreamRepo(cfg.Paths.StreamsDoc, slogLogger)
	settingsRepo := persistence.NewSettingsRepo(cfg.Paths.SettingsDoc, cfg.Settings, slogLogger)

	proberCfg := rtsp.DefaultPooledConfig()
	proberCfg.HeartbeatEnabled = cfg.Prober.HeartbeatEnabled
	if cfg.Prober.HeartbeatIntervalSeconds > 0 {
		proberCfg.HeartbeatInterval = time.Duration(cfg.Prober.HeartbeatIntervalSeconds) * time.Second
	}
	prober := rtsp.NewPooledProber(proberCfg, slogLogger)

	driver := transcoder.New(transcoder.Config{BinaryPath: settingsRepo.Get().TranscoderPath, Logger: slogLogger})

	reg := registry.New[*recording.Supervisor]()
	tree := suture.NewSimple("recorderd")

	cust := custodian.New(custodian.Deps{Repo: recRepo, Settings: settingsRepo.Get, Logger: slogLogger})
	tree.Add(cust)

	surf := command.New(command.Deps{
		Recordings: recRepo,
		Streams:    streamRepo,
		Settings:   settingsRepo,
		Registry:   reg,
		Tree:       tree,
		Prober:     prober,
		Driver:     driver,
		Custodian:  cust,
		OutputDir:  settingsRepo.Get().OutputDir,
		LogDir:     cfg.Paths.LogDir,
		Logger:     slogLogger,
	})

	recoverInFlightRecordings(recRepo, tree, recording.Deps{
		Driver:    driver,
		Prober:    prober,
		Repo:      recRepo,
		Registry:  reg,
		Custodian: cust,
		OutputDir: settingsRepo.Get().OutputDir,
		LogDir:    cfg.Paths.LogDir,
		Logger:    slogLogger,
	}, settingsRepo.Get(), slogLogger)

	promReg := prometheus.NewRegistry()
	appMetrics := httpapi.NewMetrics(promReg)
	router := httpapi.NewRouter(surf, promReg, appMetrics, &zl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	util.SafeGo("supervisor-tree", os.Stderr, func() {
		if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
			slogLogger.Error("supervisor tree exited", "err", err)
		}
	}, nil)

	httpErrCh := make(chan error, 1)
	ready := make(chan struct{})
	util.SafeGo("http-server", os.Stderr, func() {
		httpErrCh <- health.ListenAndServeReady(ctx, *addr, router, ready)
	}, nil)

	select {
	case <-ready:
		slogLogger.Info("recorderd ready", "addr", *addr, "version", Version, "commit", GitCommit)
	case err := <-httpErrCh:
		return fmt.Errorf("http server failed to start: %w", err)
	}

	<-ctx.Done()
	slogLogger.Info("shutting down")

	if err := <-httpErrCh; err != nil {
		slogLogger.Error("http server shutdown error", "err", err)
	}
	if err := recRepo.Flush(); err != nil {
		slogLogger.Error("flush recordings document", "err", err)
	}
	return nil
}

// recoverInFlightRecordings re-instantiates a Supervisor for every
// persisted Recording still in flight at startup (spec.md 4.5's crash
// recovery: Success == SuccessUnset survives a restart as a fresh attempt,
// not a lost recording). It mirrors command.Surface.spawn exactly, since
// after a restart there is no live Supervisor for these rows to resume
// from and the Supervisor's own scheduling logic re-derives state from
// the persisted StartTime/Duration.
func recoverInFlightRecordings(repo *persistence.RecordingRepo, tree command.Tree, deps recording.Deps, base settings.Settings, logger *slog.Logger) {
	for _, rec := range repo.List() {
		if rec.Success != persistence.SuccessUnset {
			continue
		}
		sched := recording.Schedule{
			Name:      rec.Name,
			URL:       rec.RTSPURL,
			StartTime: rec.StartTime,
			Duration:  time.Duration(rec.Duration) * time.Second,
		}
		sup, err := recording.New(rec.ID, sched, base, deps)
		if err != nil {
			logger.Error("recover in-flight recording", "id", rec.ID, "err", err)
			continue
		}
		tree.Add(sup)
		logger.Info("recovered in-flight recording", "id", rec.ID, "name", rec.Name)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

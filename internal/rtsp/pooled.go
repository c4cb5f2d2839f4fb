// SPDX-License-Identifier: MIT

package rtsp

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"time"
)

// PooledConfig configures a PooledProber.
type PooledConfig struct {
	MaxEndpoints      int
	IdleTTL           time.Duration
	DialTimeout       time.Duration
	HeartbeatEnabled  bool
	HeartbeatInterval time.Duration
}

// DefaultPooledConfig returns spec.md 4.3's suggested idle TTL (~10
// minutes) and the Open Question resolution recorded in SPEC_FULL.md 9
// (heartbeat off by default, 30s when enabled).
func DefaultPooledConfig() PooledConfig {
	return PooledConfig{
		MaxEndpoints:      256,
		IdleTTL:           10 * time.Minute,
		DialTimeout:       5 * time.Second,
		HeartbeatEnabled:  false,
		HeartbeatInterval: 30 * time.Second,
	}
}

// PooledProber is the contract implementation of Prober from spec.md 4.3:
// one pooled, CSeq-demultiplexed TCP connection per (host, port) endpoint,
// shared across concurrent probes to the same target.
type PooledProber struct {
	pool   *pool
	cfg    PooledConfig
	logger *slog.Logger
}

// NewPooledProber builds a PooledProber. A nil logger uses slog.Default().
func NewPooledProber(cfg PooledConfig, logger *slog.Logger) *PooledProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &PooledProber{pool: newPool(cfg.MaxEndpoints, cfg.IdleTTL, logger), cfg: cfg, logger: logger}
}

// Probe implements Prober.
func (p *PooledProber) Probe(ctx context.Context, rawURL string, timeout time.Duration) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{Status: StatusInvalid, Err: err}
	}
	port := u.Port()
	if port == "" {
		port = "554"
	}
	key := net.JoinHostPort(u.Hostname(), port)

	ep, created, err := p.pool.getOrDial(key, func() (net.Conn, error) {
		d := net.Dialer{Timeout: p.cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", key)
	})
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	if created && p.cfg.HeartbeatEnabled {
		ep.startHeartbeat(p.cfg.HeartbeatInterval)
	}
	return ep.probe(ctx, rawURL, timeout)
}

// Close stops the pool's idle-eviction janitor.
func (p *PooledProber) Close() { p.pool.Close() }

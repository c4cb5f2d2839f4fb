// SPDX-License-Identifier: MIT

package rtsp

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"sync"
	"time"
)

// SerialProber is the "simpler per-host-serialized variant" spec.md 4.3
// allows as a feature-flag fallback: one request in flight per host at a
// time, so there is never more than one outstanding CSeq to demultiplex.
// Each probe dials its own short-lived connection.
type SerialProber struct {
	dialTimeout time.Duration

	mu     sync.Mutex
	hostMu map[string]*sync.Mutex
}

// NewSerialProber builds a SerialProber with the given dial timeout.
func NewSerialProber(dialTimeout time.Duration) *SerialProber {
	return &SerialProber{dialTimeout: dialTimeout, hostMu: make(map[string]*sync.Mutex)}
}

func (s *SerialProber) lockFor(host string) func() {
	s.mu.Lock()
	m, ok := s.hostMu[host]
	if !ok {
		m = &sync.Mutex{}
		s.hostMu[host] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Probe implements Prober.
func (s *SerialProber) Probe(ctx context.Context, rawURL string, timeout time.Duration) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{Status: StatusInvalid, Err: err}
	}
	port := u.Port()
	if port == "" {
		port = "554"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	unlock := s.lockFor(addr)
	defer unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	d := net.Dialer{}
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Result{Status: StatusError, Err: err}
	}

	if err := writeDescribe(conn, rawURL, 1); err != nil {
		return Result{Status: StatusError, Err: err}
	}

	resp, err := readResponse(bufio.NewReaderSize(conn, 8192))
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return Result{Status: StatusTimeout}
		}
		return Result{Status: StatusError, Err: err}
	}
	return Result{Status: classifyResponse(resp)}
}

// SPDX-License-Identifier: MIT

package rtsp

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrEndpointClosed is returned when a probe is issued against (or
// outstanding on) an endpoint whose connection has just been torn down.
var ErrEndpointClosed = errors.New("rtsp: endpoint closed")

// endpoint owns one pooled TCP connection to an (host, port) pair, with a
// single reader goroutine demultiplexing responses to pending probes by
// CSeq, per spec.md 4.3.
type endpoint struct {
	key    string
	logger *slog.Logger

	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	// mu guards cseq, pending and the writer together: assigning a CSeq,
	// registering its pending resolver, and writing the request to the
	// socket happen as one atomic step, so writes hit the wire in CSeq
	// order (spec.md 5: "requests are written to the socket in CSeq
	// order"). A separate write-only mutex would let two goroutines race
	// between "assign" and "write" and reorder the two on the wire.
	mu      sync.Mutex
	cseq    int
	pending map[int]chan Result
	closed  bool

	done            chan struct{}
	heartbeatCancel context.CancelFunc

	// onEvict, if set, notifies the owning pool to drop its bookkeeping for
	// this endpoint once it tears itself down.
	onEvict func()
}

func newEndpoint(key string, conn net.Conn, logger *slog.Logger) *endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	e := &endpoint{
		key:     key,
		logger:  logger,
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 8192),
		writer:  bufio.NewWriter(conn),
		pending: make(map[int]chan Result),
		done:    make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// probe sends one DESCRIBE on this endpoint's connection and waits for its
// matching response, the caller's timeout, or endpoint teardown, whichever
// comes first.
func (e *endpoint) probe(ctx context.Context, rawURL string, timeout time.Duration) Result {
	ch := make(chan Result, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Result{Status: StatusError, Err: ErrEndpointClosed}
	}
	e.cseq++
	cseq := e.cseq
	e.pending[cseq] = ch
	err := writeDescribe(e.writer, rawURL, cseq)
	if err == nil {
		err = e.writer.Flush()
	}
	e.mu.Unlock()
	if err != nil {
		e.dropPending(cseq)
		return Result{Status: StatusError, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res
	case <-timer.C:
		e.dropPending(cseq)
		return Result{Status: StatusTimeout}
	case <-ctx.Done():
		e.dropPending(cseq)
		return Result{Status: StatusError, Err: ctx.Err()}
	case <-e.done:
		return Result{Status: StatusError, Err: ErrEndpointClosed}
	}
}

func (e *endpoint) dropPending(cseq int) {
	e.mu.Lock()
	delete(e.pending, cseq)
	e.mu.Unlock()
}

// readLoop continuously parses responses and dispatches each to the
// pending request whose CSeq it matches. Unmatched or unparsable responses
// are dropped, per spec.md 4.3.
func (e *endpoint) readLoop() {
	for {
		resp, err := readResponse(e.reader)
		if err != nil {
			e.evict(err)
			return
		}
		if !resp.hasCSeq {
			// No CSeq at all: cannot be demultiplexed to any pending probe.
			continue
		}
		e.mu.Lock()
		ch, ok := e.pending[resp.cseq]
		if ok {
			delete(e.pending, resp.cseq)
		}
		e.mu.Unlock()
		if !ok {
			continue
		}
		ch <- Result{Status: classifyResponse(resp)}
	}
}

// startHeartbeat sends a periodic OPTIONS on this endpoint to keep the
// connection warm. Responses are discarded: they carry a CSeq no probe is
// waiting on, so readLoop drops them exactly like any other unmatched
// response.
func (e *endpoint) startHeartbeat(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	e.heartbeatCancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.mu.Lock()
				e.cseq++
				cseq := e.cseq
				err := writeOptions(e.writer, "*", cseq)
				if err == nil {
					err = e.writer.Flush()
				}
				e.mu.Unlock()
				if err != nil {
					e.evict(err)
					return
				}
			}
		}
	}()
}

// evict tears the endpoint down: every still-pending probe resolves as
// StatusError, and the connection is closed.
func (e *endpoint) evict(cause error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, ch := range pending {
		ch <- Result{Status: StatusError, Err: cause}
	}
	if e.heartbeatCancel != nil {
		e.heartbeatCancel()
	}
	close(e.done)
	if err := e.conn.Close(); err != nil {
		e.logger.Debug("rtsp: endpoint close error", "key", e.key, "error", err)
	}
	if e.onEvict != nil {
		e.onEvict()
	}
}

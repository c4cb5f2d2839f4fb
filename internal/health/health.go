// SPDX-License-Identifier: MIT

// Package health provides the graceful bind/serve/shutdown sequence
// cmd/recorderd uses to run internal/httpapi's router. The daemon's own
// liveness and metrics endpoints are served by that router (/healthz,
// /metrics); this package supplies the surrounding server lifecycle so a
// port-in-use error surfaces before the caller reports the daemon ready,
// rather than being swallowed in a background goroutine.
package health

import (
	"context"
	"net"
	"net/http"
	"time"
)

// ListenAndServe starts handler on addr and shuts it down gracefully when
// ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	return ListenAndServeReady(ctx, addr, handler, nil)
}

// ListenAndServeReady binds addr synchronously — so a bind failure (port
// already in use) is returned immediately rather than discovered only
// after ctx is cancelled — then serves handler until ctx is done. If ready
// is non-nil it is closed once the listener is bound, so the daemon can
// wait for the endpoint to actually be up before reporting itself ready.
func ListenAndServeReady(ctx context.Context, addr string, handler http.Handler, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if ready != nil {
		close(ready)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}

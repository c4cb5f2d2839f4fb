// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, "127.0.0.1:0", h)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after context cancellation")
	}
}

func TestListenAndServeReadySignalsOnBind(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServeReady(ctx, "127.0.0.1:0", h, ready)
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("ready was never signaled")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServeReady returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServeReady did not return after context cancellation")
	}
}

func TestListenAndServeReturnsBindError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	go func() {
		_ = ListenAndServeReady(ctx, "127.0.0.1:0", h, ready)
	}()
	<-ready

	// Binding the same ephemeral port twice isn't reproducible, so instead
	// verify an invalid address surfaces its error synchronously rather
	// than hanging until ctx is cancelled.
	if err := ListenAndServe(ctx, "invalid-address-no-port", h); err == nil {
		t.Fatal("expected bind error for invalid address")
	}
}

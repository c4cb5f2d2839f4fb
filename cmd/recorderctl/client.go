// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/custodian"
	"github.com/gnimrodg/rtsp-recorder/internal/persistence"
	"github.com/gnimrodg/rtsp-recorder/internal/rtsp"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// apiClient is a thin HTTP client for recorderd's internal/httpapi routes.
// It decodes responses directly into the command package's own view
// types, since the server encodes them with encoding/json's default field
// names and this client lives in the same module.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 30 * time.Second}}
}

// apiError is returned when the server responds with a non-2xx status; it
// carries the {"error": "..."} body httpapi.writeError emits.
type apiError struct {
	Status int
	Message string
}

func (e *apiError) Error() string { return fmt.Sprintf("server: %s (HTTP %d)", e.Message, e.Status) }

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type recordingRequest struct {
	Name      string    `json:"name"`
	RTSPURL   string    `json:"rtspUrl"`
	StartTime time.Time `json:"startTime"`
	Duration  int       `json:"duration"`
}

type streamRequest struct {
	Name        string `json:"name"`
	RTSPURL     string `json:"rtspUrl"`
	Description string `json:"description"`
	Favorite    bool   `json:"favorite"`
}

func (c *apiClient) ListRecordings() []command.RecordingView {
	var out []command.RecordingView
	_ = c.do(context.Background(), http.MethodGet, "/recordings", nil, &out)
	return out
}

func (c *apiClient) GetRecording(ctx context.Context, id string) (command.RecordingView, error) {
	var out command.RecordingView
	err := c.do(ctx, http.MethodGet, "/recordings/"+id, nil, &out)
	return out, err
}

// CreateRecording implements menu.Client; it discards the context the
// interface doesn't pass, using a bounded background one instead.
func (c *apiClient) CreateRecording(in command.CreateInput) (command.RecordingView, error) {
	return c.CreateRecordingCtx(context.Background(), in)
}

func (c *apiClient) CreateRecordingCtx(ctx context.Context, in command.CreateInput) (command.RecordingView, error) {
	var out command.RecordingView
	err := c.do(ctx, http.MethodPost, "/recordings", recordingRequest{
		Name: in.Name, RTSPURL: in.RTSPURL, StartTime: in.StartTime, Duration: int(in.Duration.Seconds()),
	}, &out)
	return out, err
}

func (c *apiClient) UpdateRecording(ctx context.Context, id string, in command.UpdateInput) (command.RecordingView, error) {
	var out command.RecordingView
	err := c.do(ctx, http.MethodPatch, "/recordings/"+id, recordingRequest{
		Name: in.Name, RTSPURL: in.RTSPURL, StartTime: in.StartTime, Duration: int(in.Duration.Seconds()),
	}, &out)
	return out, err
}

func (c *apiClient) DeleteRecording(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/recordings/"+id, nil, nil)
}

func (c *apiClient) StartRecording(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/recordings/"+id+"/start", nil, nil)
}

func (c *apiClient) StopRecording(id string) error {
	return c.do(context.Background(), http.MethodPost, "/recordings/"+id+"/stop", nil, nil)
}

func (c *apiClient) SetProbeMode(ctx context.Context, id string, ignoreProbe bool) error {
	return c.do(ctx, http.MethodPost, "/recordings/"+id+"/probe-mode", map[string]bool{"ignoreProbe": ignoreProbe}, nil)
}

func (c *apiClient) GetRecordingStats(ctx context.Context) (command.Stats, error) {
	var out command.Stats
	err := c.do(ctx, http.MethodGet, "/recordings/stats", nil, &out)
	return out, err
}

func (c *apiClient) ListSavedStreams() []persistence.SavedStream {
	var out []persistence.SavedStream
	_ = c.do(context.Background(), http.MethodGet, "/streams", nil, &out)
	return out
}

func (c *apiClient) CreateSavedStream(ctx context.Context, in command.SavedStreamInput) (persistence.SavedStream, error) {
	var out persistence.SavedStream
	err := c.do(ctx, http.MethodPost, "/streams", streamRequest{
		Name: in.Name, RTSPURL: in.RTSPURL, Description: in.Description, Favorite: in.Favorite,
	}, &out)
	return out, err
}

func (c *apiClient) UpdateSavedStream(ctx context.Context, id string, in command.SavedStreamInput) (persistence.SavedStream, error) {
	var out persistence.SavedStream
	err := c.do(ctx, http.MethodPatch, "/streams/"+id, streamRequest{
		Name: in.Name, RTSPURL: in.RTSPURL, Description: in.Description, Favorite: in.Favorite,
	}, &out)
	return out, err
}

func (c *apiClient) DeleteSavedStream(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/streams/"+id, nil, nil)
}

// ProbeStream implements menu.Client's synchronous signature over HTTP;
// only the Status field round-trips, matching handleProbeStream's response.
func (c *apiClient) ProbeStream(ctx context.Context, rawURL string, timeout time.Duration) rtsp.Result {
	var out struct {
		Status rtsp.Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/probe", map[string]any{
		"rtspUrl": rawURL, "timeoutSeconds": int(timeout.Seconds()),
	}, &out); err != nil {
		return rtsp.Result{Status: rtsp.StatusError, Err: err}
	}
	return rtsp.Result{Status: out.Status}
}

func (c *apiClient) GetStorageStats() command.StorageStats {
	var out command.StorageStats
	_ = c.do(context.Background(), http.MethodGet, "/storage", nil, &out)
	return out
}

func (c *apiClient) RunStorageCleanup(ctx context.Context) custodian.Result {
	var out custodian.Result
	_ = c.do(ctx, http.MethodPost, "/storage/cleanup", nil, &out)
	return out
}

func (c *apiClient) GetSettings() settings.Settings {
	var out settings.Settings
	_ = c.do(context.Background(), http.MethodGet, "/settings", nil, &out)
	return out
}

func (c *apiClient) UpdateSettings(ctx context.Context, override settings.Settings) (settings.Settings, error) {
	var out settings.Settings
	err := c.do(ctx, http.MethodPatch, "/settings", override, &out)
	return out, err
}

// SPDX-License-Identifier: MIT

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/coreerr"
	"github.com/gnimrodg/rtsp-recorder/internal/settings"
)

// recordingRequest is the JSON body accepted by create/update recording.
type recordingRequest struct {
	Name      string    `json:"name"`
	RTSPURL   string    `json:"rtspUrl"`
	StartTime time.Time `json:"startTime"`
	Duration  int       `json:"duration"` // seconds
}

func handleListRecordings(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surf.ListRecordings())
	}
}

func handleGetRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := surf.GetRecording(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleCreateRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		v, err := surf.CreateRecording(command.CreateInput{
			Name: req.Name, RTSPURL: req.RTSPURL, StartTime: req.StartTime,
			Duration: time.Duration(req.Duration) * time.Second,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func handleUpdateRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		v, err := surf.UpdateRecording(chi.URLParam(r, "id"), command.UpdateInput{
			Name: req.Name, RTSPURL: req.RTSPURL, StartTime: req.StartTime,
			Duration: time.Duration(req.Duration) * time.Second,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surf.DeleteRecording(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleStartRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surf.StartRecording(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleStopRecording(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surf.StopRecording(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProbeMode(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IgnoreProbe bool `json:"ignoreProbe"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		if err := surf.SetProbeMode(chi.URLParam(r, "id"), req.IgnoreProbe); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRecordingStats(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surf.GetRecordingStats())
	}
}

type streamRequest struct {
	Name        string `json:"name"`
	RTSPURL     string `json:"rtspUrl"`
	Description string `json:"description"`
	Favorite    bool   `json:"favorite"`
}

func handleListStreams(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surf.ListSavedStreams())
	}
}

func handleCreateStream(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req streamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		st, err := surf.CreateSavedStream(command.SavedStreamInput{
			Name: req.Name, RTSPURL: req.RTSPURL, Description: req.Description, Favorite: req.Favorite,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func handleUpdateStream(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req streamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		st, err := surf.UpdateSavedStream(chi.URLParam(r, "id"), command.SavedStreamInput{
			Name: req.Name, RTSPURL: req.RTSPURL, Description: req.Description, Favorite: req.Favorite,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleDeleteStream(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surf.DeleteSavedStream(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProbeStream(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RTSPURL        string `json:"rtspUrl"`
			TimeoutSeconds int    `json:"timeoutSeconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		ctx, cancel := contextWithTimeout(r)
		defer cancel()
		res := surf.ProbeStream(ctx, req.RTSPURL, time.Duration(req.TimeoutSeconds)*time.Second)
		writeJSON(w, http.StatusOK, map[string]any{"status": res.Status})
	}
}

func handleStorageStats(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surf.GetStorageStats())
	}
}

func handleStorageCleanup(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := contextWithTimeout(r)
		defer cancel()
		writeJSON(w, http.StatusOK, surf.RunStorageCleanup(ctx))
	}
}

func handleGetSettings(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surf.GetSettings())
	}
}

func handleUpdateSettings(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settings.Settings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, coreerr.NewValidation("body", "invalid JSON: "+err.Error()))
			return
		}
		updated, err := surf.UpdateSettings(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

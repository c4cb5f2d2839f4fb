// SPDX-License-Identifier: MIT

package persistence

import (
	"encoding/json"
	"time"
)

// Success is the tri-state persisted terminal outcome of a Recording:
// unset while the recording is still in flight, true/false once finalized.
// See spec.md 3 and Design Notes ("state machine vs flags").
type Success int

const (
	SuccessUnset Success = iota
	SuccessTrue
	SuccessFalse
)

func (s Success) MarshalJSON() ([]byte, error) {
	switch s {
	case SuccessTrue:
		return json.Marshal(true)
	case SuccessFalse:
		return json.Marshal(false)
	default:
		return json.Marshal(nil)
	}
}

func (s *Success) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*s = SuccessUnset
	case *v:
		*s = SuccessTrue
	default:
		*s = SuccessFalse
	}
	return nil
}

// knownRecordingFields lists the JSON keys documents.go owns; anything else
// present on disk round-trips via Extra, so a newer writer's fields survive
// being loaded and re-saved by this one (spec.md 6: "unknown fields are
// preserved across rewrites").
var knownRecordingFields = map[string]bool{
	"id": true, "name": true, "rtspUrl": true, "startTime": true,
	"duration": true, "success": true, "outputPath": true,
	"createdAt": true, "updatedAt": true, "completedAt": true,
	"errorMessage": true,
}

// Recording is the persisted row for one capture job (spec.md 3 and 6).
type Recording struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RTSPURL      string     `json:"rtspUrl"`
	StartTime    time.Time  `json:"startTime"`
	Duration     int        `json:"duration"` // seconds
	Success      Success    `json:"success"`
	OutputPath   string     `json:"outputPath,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON emits the known fields plus any preserved Extra fields.
func (r Recording) MarshalJSON() ([]byte, error) {
	type alias Recording
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if knownRecordingFields[k] {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and stashes everything else in Extra.
func (r *Recording) UnmarshalJSON(data []byte) error {
	type alias Recording
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownRecordingFields[k] {
			extra[k] = v
		}
	}
	*r = Recording(a)
	r.Extra = extra
	return nil
}

// SavedStream is a reusable name+URL+description record (spec.md 3, 6).
type SavedStream struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RTSPURL     string    `json:"rtspUrl"`
	Description string    `json:"description,omitempty"`
	Favorite    bool      `json:"favorite,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RecordingsDoc is the on-disk shape of the recordings document.
type RecordingsDoc struct {
	Recordings []Recording `json:"recordings"`
}

// StreamsDoc is the on-disk shape of the saved-streams document.
type StreamsDoc struct {
	Streams []SavedStream `json:"streams"`
}

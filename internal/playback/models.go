package playback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Word is a single timed token inside a Segment. Times are seconds.
type Word struct {
	Text  string  `json:"text" yaml:"text"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Segment is a time-bounded transcript unit.
// Segments are delivered by the host's feed and never mutated after ingestion.
type Segment struct {
	ID          string  `json:"id" yaml:"id"`
	Start       float64 `json:"start" yaml:"start"`
	End         float64 `json:"end" yaml:"end"`
	Text        string  `json:"text" yaml:"text"`
	Words       []Word  `json:"words,omitempty" yaml:"words,omitempty"`
	Translation string  `json:"translation,omitempty" yaml:"translation,omitempty"`
}

// GlobalIndex returns the segment's numeric ID, or local when the ID is not numeric.
func (s Segment) GlobalIndex(local int) int {
	if n, err := strconv.Atoi(s.ID); err == nil {
		return n
	}
	return local
}

// UnmarshalJSON accepts the id as a JSON string or number.
func (s *Segment) UnmarshalJSON(data []byte) error {
	type plain Segment
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw := bytes.TrimSpace(aux.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		s.ID = ""
	case raw[0] == '"':
		return json.Unmarshal(raw, &s.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("segment id: %w", err)
		}
		s.ID = n.String()
	}
	return nil
}

// Contains reports whether t falls in [Start, End).
func (s Segment) Contains(t float64) bool {
	return s.Start <= t && t < s.End
}

// PlaybackState is a read-only view of the transport.
type PlaybackState struct {
	Position float64 `json:"position"`
	Rate     float64 `json:"rate"`
	Playing  bool    `json:"playing"`
}

// ActiveIndex holds the segment and word covering the current position, -1 when none.
type ActiveIndex struct {
	Segment int `json:"segment"`
	Word    int `json:"word"`
}

// NoActive is the ActiveIndex before the first tick or in a gap.
var NoActive = ActiveIndex{Segment: -1, Word: -1}

// LoopState is a snapshot of the A/B loop.
type LoopState struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	RepeatCount   int     `json:"repeat_count"`
	CurrentRepeat int     `json:"current_repeat"`
	Armed         bool    `json:"armed"`
	Polling       bool    `json:"polling"`
}

// RecordingStatus is the phase of a RecordingSession.
type RecordingStatus int

const (
	RecordingIdle RecordingStatus = iota
	RecordingActive
	RecordingStopped
)

// String returns the status name.
func (s RecordingStatus) String() string {
	switch s {
	case RecordingIdle:
		return "idle"
	case RecordingActive:
		return "recording"
	case RecordingStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets the status render as its name in JSON.
func (s RecordingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RecordingState is a snapshot of a RecordingSession.
// Elapsed is meaningful while recording; ArtifactID once stopped.
type RecordingState struct {
	Status     RecordingStatus `json:"status"`
	Elapsed    time.Duration   `json:"elapsed"`
	ArtifactID string          `json:"artifact_id,omitempty"`
}

// ViewState holds the transcript visibility toggles.
type ViewState struct {
	ShowSource      bool `json:"show_source"`
	ShowTranslation bool `json:"show_translation"`
}

// KeyEvent is one input event from the host UI.
type KeyEvent struct {
	Key      string `json:"key"`
	Shift    bool   `json:"shift,omitempty"`
	Ctrl     bool   `json:"ctrl,omitempty"`
	Meta     bool   `json:"meta,omitempty"`
	Alt      bool   `json:"alt,omitempty"`
	Editable bool   `json:"editable,omitempty"`
}

// Bare reports whether no modifier is held.
func (e KeyEvent) Bare() bool {
	return !e.Shift && !e.Ctrl && !e.Meta && !e.Alt
}

// Command reports whether ctrl or meta (cmd) is held.
func (e KeyEvent) Command() bool {
	return e.Ctrl || e.Meta
}

// Snapshot is the full observable engine state.
type Snapshot struct {
	Playback  PlaybackState  `json:"playback"`
	Active    ActiveIndex    `json:"active"`
	Loop      LoopState      `json:"loop"`
	Recording RecordingState `json:"recording"`
	View      ViewState      `json:"view"`
	Segments  int            `json:"segments"`
}

package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// IPC Events
// ============================================================================
// Events are what the playback subsystem (or a user at a shell) sends to the
// daemon over IPC. The daemon maps each one onto a controller call.
// ============================================================================

// Event is a marker interface for everything that can arrive over IPC.
type Event interface {
	eventMarker()
}

// PlaybackStarted reports that adhan playback has begun.
type PlaybackStarted struct {
	Source string `json:"source,omitempty"` // e.g. "fajr", "scheduler"
	Title  string `json:"title,omitempty"`
}

func (PlaybackStarted) eventMarker() {}

// PlaybackStopped reports that adhan playback has ended, for whatever reason.
type PlaybackStopped struct {
	Source string `json:"source,omitempty"`
}

func (PlaybackStopped) eventMarker() {}

// StopPlayback asks the daemon to raise a manual stop request.
type StopPlayback struct{}

func (StopPlayback) eventMarker() {}

// VolumeStateQuery asks for the current and maximum output level.
type VolumeStateQuery struct{}

func (VolumeStateQuery) eventMarker() {}

// SessionStateQuery asks for a snapshot of the playback session.
type SessionStateQuery struct{}

func (SessionStateQuery) eventMarker() {}

// VolumeState is the reply payload for VolumeStateQuery.
type VolumeState struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

const (
	eventTypePlaybackStarted = "playback_started"
	eventTypePlaybackStopped = "playback_stopped"
	eventTypeStop            = "stop"
	eventTypeVolumeState     = "volume_state"
	eventTypeSessionState    = "session_state"
)

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case eventTypePlaybackStarted:
		var e PlaybackStarted
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal PlaybackStarted: %w", err)
		}
		return e, nil

	case eventTypePlaybackStopped:
		var e PlaybackStopped
		if err := unmarshalData(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal PlaybackStopped: %w", err)
		}
		return e, nil

	case eventTypeStop:
		return StopPlayback{}, nil
	case eventTypeVolumeState:
		return VolumeStateQuery{}, nil
	case eventTypeSessionState:
		return SessionStateQuery{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// unmarshalData treats a missing data field as an empty payload.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case PlaybackStarted:
		env.Type = eventTypePlaybackStarted
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PlaybackStarted: %w", err)
		}
		env.Data = data

	case PlaybackStopped:
		env.Type = eventTypePlaybackStopped
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PlaybackStopped: %w", err)
		}
		env.Data = data

	case StopPlayback:
		env.Type = eventTypeStop
	case VolumeStateQuery:
		env.Type = eventTypeVolumeState
	case SessionStateQuery:
		env.Type = eventTypeSessionState

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}

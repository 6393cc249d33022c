package interrupt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Boundary types
// ============================================================================
// The controller talks to three collaborators it does not own:
//   - the audio service (AudioLevel), queried for the current output level
//   - the playback subsystem (Notifier), told to halt playback
//   - whoever wants to follow session transitions (Observer), e.g. the status hub
// ============================================================================

// AudioLevel reports the system output level as an integer in [0, MaxLevel].
type AudioLevel interface {
	Level(ctx context.Context) (int, error)

	// MaxLevel is queried once per session and treated as a constant for it.
	MaxLevel(ctx context.Context) (int, error)
}

// Notifier delivers a stop request to the playback subsystem.
// Delivery is best-effort; an error only gets logged.
type Notifier interface {
	NotifyStop(ctx context.Context, req StopRequest) error
}

// Observer is told about every effective session transition.
// It is called outside the controller lock.
type Observer interface {
	SessionChanged(s Snapshot)
}

// ErrNoListeners is returned by notifiers that had nobody to deliver to.
var ErrNoListeners = errors.New("no stop listeners connected")

// KeyCode is a Linux input key code (see <linux/input-event-codes.h>).
type KeyCode uint16

const (
	KeyVolumeDown KeyCode = 114
	KeyVolumeUp   KeyCode = 115
)

func (k KeyCode) String() string {
	switch k {
	case KeyVolumeDown:
		return "volume_down"
	case KeyVolumeUp:
		return "volume_up"
	default:
		return fmt.Sprintf("key_%d", uint16(k))
	}
}

// IsVolumeKey reports whether k is one of the two keys the interceptor governs.
func (k KeyCode) IsVolumeKey() bool {
	return k == KeyVolumeDown || k == KeyVolumeUp
}

// KeyState mirrors the evdev EV_KEY value field.
type KeyState int32

const (
	KeyRelease KeyState = 0
	KeyPress   KeyState = 1
	KeyRepeat  KeyState = 2
)

// KeyEvent is a single raw key transition from the input path.
type KeyEvent struct {
	Code  KeyCode
	State KeyState
}

// Disposition is the interceptor's verdict for one event.
type Disposition int

const (
	// Forward lets default handling run (the OS changes the volume).
	Forward Disposition = iota
	// Consume suppresses default handling.
	Consume
)

func (d Disposition) String() string {
	if d == Consume {
		return "consume"
	}
	return "forward"
}

// StopReason says which path raised the stop signal.
type StopReason string

const (
	ReasonVolumeKey    StopReason = "volume_key"
	ReasonLevelChanged StopReason = "level_changed"
	ReasonManual       StopReason = "manual"
)

// StopCause is what a caller supplies to RaiseStop.
type StopCause struct {
	Reason StopReason

	// Key is set for ReasonVolumeKey.
	Key KeyCode

	// FromLevel/ToLevel are set for ReasonLevelChanged.
	FromLevel int
	ToLevel   int
}

// StopRequest is the outbound notification sent to the playback subsystem.
type StopRequest struct {
	SessionID string     `json:"session_id"`
	Reason    StopReason `json:"reason"`
	Key       string     `json:"key,omitempty"`
	KeyCode   uint16     `json:"key_code,omitempty"`
	FromLevel *int       `json:"from_level,omitempty"`
	ToLevel   *int       `json:"to_level,omitempty"`
	At        time.Time  `json:"at"`
}

// Snapshot is a copy of the session state safe to hand to other goroutines.
type Snapshot struct {
	Active         bool      `json:"active"`
	SessionID      string    `json:"session_id,omitempty"`
	LastKnownLevel int       `json:"last_known_level"`
	LevelKnown     bool      `json:"level_known"`
	MaxLevel       int       `json:"max_level"`
	StartedAt      time.Time `json:"started_at,omitempty"`
}

// Package interrupt stops an adhan playback session when the user touches the volume
// controls.
//
// A Controller owns the session state. Two detectors feed it:
//   - Interceptor sees raw volume key events and consumes them while a session is active
//   - the level monitor polls the output level and treats any change as user intervention
//
// Both raise the same one-shot stop signal, which is forwarded to the playback subsystem
// through a Notifier.
package interrupt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultPollInterval is the level monitor period.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultQueryTimeout bounds a single audio level query.
	DefaultQueryTimeout = time.Second

	// DefaultNotifyTimeout bounds a single stop delivery.
	DefaultNotifyTimeout = 2 * time.Second
)

// Options configures a Controller. Audio and Notifier are required.
type Options struct {
	Audio    AudioLevel
	Notifier Notifier
	Observer Observer

	Clock         clockwork.Clock
	PollInterval  time.Duration
	QueryTimeout  time.Duration
	NotifyTimeout time.Duration

	Logger *slog.Logger

	// NewSessionID overrides uuid generation (tests).
	NewSessionID func() string
}

// sessionState is the process-wide session record. Guarded by Controller.mu.
type sessionState struct {
	active         bool
	lastKnownLevel int
	levelKnown     bool
	maxLevel       int
	id             string
	startedAt      time.Time
}

// Controller is the single writer of session state. Safe for concurrent use.
type Controller struct {
	audio    AudioLevel
	notifier Notifier
	observer Observer

	clock         clockwork.Clock
	interval      time.Duration
	queryTimeout  time.Duration
	notifyTimeout time.Duration
	logger        *slog.Logger
	newID         func() string

	mu     sync.Mutex
	state  sessionState
	handle *monitorHandle
}

// New returns an idle controller.
func New(opts Options) *Controller {
	c := &Controller{
		audio:         opts.Audio,
		notifier:      opts.Notifier,
		observer:      opts.Observer,
		clock:         opts.Clock,
		interval:      opts.PollInterval,
		queryTimeout:  opts.QueryTimeout,
		notifyTimeout: opts.NotifyTimeout,
		logger:        opts.Logger,
		newID:         opts.NewSessionID,
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = DefaultQueryTimeout
	}
	if c.notifyTimeout <= 0 {
		c.notifyTimeout = DefaultNotifyTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// OnPlaybackStarted snapshots the current output level and arms both detectors.
//
// Starting while a session is already active restarts it: the old monitor handle is
// cancelled before the new one is created.
func (c *Controller) OnPlaybackStarted(ctx context.Context) Snapshot {
	level, levelErr := c.queryLevel(ctx)
	if levelErr != nil {
		c.logger.Warn("could not sample output level at playback start; first successful poll becomes the baseline", "error", levelErr)
	}
	maxLevel, maxErr := c.queryMaxLevel(ctx)
	if maxErr != nil {
		c.logger.Warn("could not query max output level", "error", maxErr)
	}

	c.mu.Lock()
	if c.state.active {
		c.logger.Info("playback started while a session is active; restarting session", "session_id", c.state.id)
	}
	c.arm(level, levelErr == nil, maxLevel)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("adhan session armed",
		"session_id", snap.SessionID,
		"level", snap.LastKnownLevel,
		"level_known", snap.LevelKnown,
		"max_level", snap.MaxLevel,
		"poll_interval", c.interval)
	c.publish(snap)
	return snap
}

// OnPlaybackStopped disarms both detectors. It is a no-op when already idle.
func (c *Controller) OnPlaybackStopped() bool {
	c.mu.Lock()
	if !c.state.active {
		c.mu.Unlock()
		c.logger.Debug("playback stopped while idle; ignoring")
		return false
	}
	c.disarm()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("adhan session ended by playback subsystem", "session_id", snap.SessionID)
	c.publish(snap)
	return true
}

// RaiseStop fires the one-shot stop signal for the current session.
//
// It reports whether this call performed the active->inactive transition. Only that
// call notifies the playback subsystem; every later call in the same session is a no-op.
func (c *Controller) RaiseStop(ctx context.Context, cause StopCause) bool {
	c.mu.Lock()
	req, ok := c.stopLocked(cause)
	var snap Snapshot
	if ok {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.deliver(ctx, req)
	c.publish(snap)
	return true
}

// Active reports whether a playback session is currently armed.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.active
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// stopLocked performs the transition. Callers hold c.mu.
func (c *Controller) stopLocked(cause StopCause) (StopRequest, bool) {
	if !c.state.active {
		return StopRequest{}, false
	}
	c.disarm()

	req := StopRequest{
		SessionID: c.state.id,
		Reason:    cause.Reason,
		At:        c.clock.Now(),
	}
	switch cause.Reason {
	case ReasonVolumeKey:
		req.Key = cause.Key.String()
		req.KeyCode = uint16(cause.Key)
	case ReasonLevelChanged:
		from, to := cause.FromLevel, cause.ToLevel
		req.FromLevel = &from
		req.ToLevel = &to
	}
	return req, true
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Active:         c.state.active,
		SessionID:      c.state.id,
		LastKnownLevel: c.state.lastKnownLevel,
		LevelKnown:     c.state.levelKnown,
		MaxLevel:       c.state.maxLevel,
		StartedAt:      c.state.startedAt,
	}
}

// deliver sends the stop request across the boundary. Failures are logged and
// swallowed: local state is already inactive and stays that way.
func (c *Controller) deliver(ctx context.Context, req StopRequest) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("stop notifier panicked", "session_id", req.SessionID, "panic", r)
		}
	}()

	c.logger.Info("stopping adhan playback", "session_id", req.SessionID, "reason", req.Reason, "key", req.Key)

	if c.notifier == nil {
		c.logger.Warn("no stop notifier configured", "session_id", req.SessionID)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.notifyTimeout)
	defer cancel()

	if err := c.notifier.NotifyStop(ctx, req); err != nil {
		c.logger.Warn("failed to notify playback subsystem; session treated as stopped",
			"session_id", req.SessionID, "error", err)
	}
}

func (c *Controller) publish(s Snapshot) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session observer panicked", "panic", r)
		}
	}()
	c.observer.SessionChanged(s)
}

func (c *Controller) queryLevel(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	return c.audio.Level(ctx)
}

func (c *Controller) queryMaxLevel(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	return c.audio.MaxLevel(ctx)
}

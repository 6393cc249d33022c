package interrupt

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// ============================================================================
// Level Monitor
// ============================================================================
// Key interception can be bypassed (another surface owns input focus, the volume
// changed from a mixer, a remote, a headset). While a session is active the monitor
// polls the output level and treats any change from the last known level as user
// intervention.
//
// Scheduling is a chain of one-shot timers, one monitorHandle per pending tick.
// The handle is the cancellation token: a tick checks it first and does nothing once
// it has been cancelled, so a timer that already fired cannot act on a disarmed or
// replaced session.
// ============================================================================

// monitorHandle is one scheduled, not yet handled, poll tick.
// cancelled is guarded by Controller.mu.
type monitorHandle struct {
	timer     clockwork.Timer
	cancelled bool
}

// arm starts a new session. Callers hold c.mu.
func (c *Controller) arm(level int, levelKnown bool, maxLevel int) {
	c.cancelHandle()

	c.state = sessionState{
		active:         true,
		lastKnownLevel: level,
		levelKnown:     levelKnown,
		maxLevel:       maxLevel,
		id:             c.newID(),
		startedAt:      c.clock.Now(),
	}
	c.handle = c.schedule()
}

// disarm cancels any pending tick and marks the session inactive. Callers hold c.mu.
func (c *Controller) disarm() {
	c.cancelHandle()
	c.state.active = false
}

// cancelHandle invalidates the outstanding handle, if any. Callers hold c.mu.
func (c *Controller) cancelHandle() {
	if c.handle == nil {
		return
	}
	c.handle.cancelled = true
	if c.handle.timer != nil {
		c.handle.timer.Stop()
	}
	c.handle = nil
}

// schedule creates the next handle. Callers hold c.mu and must store the result in
// c.handle, so there is never more than one pending tick.
func (c *Controller) schedule() *monitorHandle {
	h := &monitorHandle{}
	// f takes c.mu, which the caller holds, so it never sees h half-built.
	h.timer = c.clock.AfterFunc(c.interval, func() { c.tick(h) })
	return h
}

// tick handles one poll for handle h.
func (c *Controller) tick(h *monitorHandle) {
	c.mu.Lock()
	if h.cancelled || !c.state.active || c.handle != h {
		c.mu.Unlock()
		c.logger.Debug("stale level poll ignored")
		return
	}
	sessionID := c.state.id
	c.mu.Unlock()

	// Sample without holding the lock; the audio query may block.
	level, err := c.queryLevel(context.Background())

	c.mu.Lock()
	if h.cancelled || !c.state.active || c.handle != h {
		c.mu.Unlock()
		c.logger.Debug("session ended while sampling; dropping poll result", "session_id", sessionID)
		return
	}

	switch {
	case err != nil:
		// Fail toward "keep monitoring".
		c.logger.Debug("output level query failed; treating as unchanged", "session_id", sessionID, "error", err)
		c.handle = c.schedule()
		c.mu.Unlock()
		return

	case !c.state.levelKnown:
		c.state.lastKnownLevel = level
		c.state.levelKnown = true
		c.logger.Debug("output level baseline captured", "session_id", sessionID, "level", level)
		c.handle = c.schedule()
		c.mu.Unlock()
		return

	case level == c.state.lastKnownLevel:
		c.handle = c.schedule()
		c.mu.Unlock()
		return
	}

	from := c.state.lastKnownLevel
	c.state.lastKnownLevel = level
	req, ok := c.stopLocked(StopCause{Reason: ReasonLevelChanged, FromLevel: from, ToLevel: level})
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !ok {
		return
	}
	c.logger.Info("output level changed during adhan", "session_id", sessionID, "from", from, "to", level)
	c.deliver(context.Background(), req)
	c.publish(snap)
}

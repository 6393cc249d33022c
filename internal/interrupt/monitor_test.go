package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_UnchangedLevelReschedules(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())
	base := h.audio.queries()

	for i := 1; i <= 3; i++ {
		h.pollOnce(t)
		h.waitForQueries(t, base+i)
	}

	// Still armed, nothing sent, and a fourth tick is pending.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	require.True(t, h.ctrl.Active())
	require.Zero(t, h.notifier.count())
}

// Start at level 7, hold for five polls, then the sixth sees 8.
func TestMonitor_LevelChangeStopsPlayback(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())
	base := h.audio.queries()

	for i := 1; i <= 5; i++ {
		h.pollOnce(t)
		h.waitForQueries(t, base+i)
	}
	require.True(t, h.ctrl.Active())

	h.audio.set(8)
	h.pollOnce(t)

	require.Eventually(t, func() bool { return h.notifier.count() == 1 }, time.Second, time.Millisecond)
	require.False(t, h.ctrl.Active())

	req := h.notifier.last()
	assert.Equal(t, ReasonLevelChanged, req.Reason)
	require.NotNil(t, req.FromLevel)
	require.NotNil(t, req.ToLevel)
	assert.Equal(t, 7, *req.FromLevel)
	assert.Equal(t, 8, *req.ToLevel)

	// Disarmed: advancing further triggers no more polls or notifications.
	queries := h.audio.queries()
	h.clock.Advance(10 * DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, queries, h.audio.queries())
	assert.Equal(t, 1, h.notifier.count())
}

func TestMonitor_QueryFailureKeepsMonitoring(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())
	base := h.audio.queries()

	h.audio.fail(errAudioDown)
	h.pollOnce(t)
	h.waitForQueries(t, base+1)
	h.pollOnce(t)
	h.waitForQueries(t, base+2)

	require.True(t, h.ctrl.Active())
	require.Zero(t, h.notifier.count())

	// Recovery at the same level is still "unchanged".
	h.audio.fail(nil)
	h.pollOnce(t)
	h.waitForQueries(t, base+3)
	require.True(t, h.ctrl.Active())
	require.Zero(t, h.notifier.count())
}

func TestMonitor_FailedArmSampleTakesFirstPollAsBaseline(t *testing.T) {
	h := newHarness(t, 7)
	h.audio.fail(errAudioDown)
	snap := h.ctrl.OnPlaybackStarted(context.Background())
	require.False(t, snap.LevelKnown)
	base := h.audio.queries()

	h.audio.fail(nil)
	h.audio.set(9)
	h.pollOnce(t)
	h.waitForQueries(t, base+1)

	require.Eventually(t, func() bool {
		s := h.ctrl.Snapshot()
		return s.LevelKnown && s.LastKnownLevel == 9
	}, time.Second, time.Millisecond)
	require.True(t, h.ctrl.Active())
	require.Zero(t, h.notifier.count())

	h.audio.set(10)
	h.pollOnce(t)
	require.Eventually(t, func() bool { return h.notifier.count() == 1 }, time.Second, time.Millisecond)
}

func TestMonitor_StaleTickAfterStopIsIgnored(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())

	h.ctrl.mu.Lock()
	stale := h.ctrl.handle
	h.ctrl.mu.Unlock()
	require.NotNil(t, stale)

	require.True(t, h.ctrl.RaiseStop(context.Background(), StopCause{Reason: ReasonManual}))
	require.True(t, stale.cancelled)

	// A tick that was already in flight when the stop happened.
	h.audio.set(3)
	before := h.audio.queries()
	h.ctrl.tick(stale)

	assert.Equal(t, before, h.audio.queries(), "stale tick must not sample")
	assert.Equal(t, 1, h.notifier.count())
}

func TestMonitor_RestartCancelsPreviousHandle(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())

	h.ctrl.mu.Lock()
	first := h.ctrl.handle
	h.ctrl.mu.Unlock()

	snap := h.ctrl.OnPlaybackStarted(context.Background())
	require.Equal(t, "session-2", snap.SessionID)

	h.ctrl.mu.Lock()
	second := h.ctrl.handle
	h.ctrl.mu.Unlock()

	require.True(t, first.cancelled)
	require.False(t, second.cancelled)
	require.NotSame(t, first, second)

	h.audio.set(1)
	h.ctrl.tick(first)
	require.Zero(t, h.notifier.count())
	require.True(t, h.ctrl.Active())
}

func TestMonitor_SessionEndsWhileSampling(t *testing.T) {
	h := newHarness(t, 7)
	h.ctrl.OnPlaybackStarted(context.Background())

	h.ctrl.mu.Lock()
	handle := h.ctrl.handle
	h.ctrl.mu.Unlock()

	// The audio query stops the session before returning a changed level.
	h.ctrl.audio = levelFunc(func() int {
		h.ctrl.OnPlaybackStopped()
		return 2
	})
	h.ctrl.tick(handle)

	require.False(t, h.ctrl.Active())
	require.Zero(t, h.notifier.count())
}

// levelFunc adapts a function to AudioLevel.
type levelFunc func() int

func (f levelFunc) Level(context.Context) (int, error)    { return f(), nil }
func (f levelFunc) MaxLevel(context.Context) (int, error) { return 15, nil }

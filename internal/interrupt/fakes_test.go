package interrupt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// fakeAudio is a settable output level.
type fakeAudio struct {
	mu       sync.Mutex
	level    int
	max      int
	err      error
	maxErr   error
	levelCnt int
}

func newFakeAudio(level int) *fakeAudio {
	return &fakeAudio{level: level, max: 15}
}

func (a *fakeAudio) Level(context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.levelCnt++
	if a.err != nil {
		return 0, a.err
	}
	return a.level, nil
}

func (a *fakeAudio) MaxLevel(context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.maxErr != nil {
		return 0, a.maxErr
	}
	return a.max, nil
}

func (a *fakeAudio) set(level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.level = level
}

func (a *fakeAudio) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAudio) queries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.levelCnt
}

// recordingNotifier records every stop request it receives.
type recordingNotifier struct {
	mu    sync.Mutex
	reqs  []StopRequest
	err   error
	panic bool
}

func (n *recordingNotifier) NotifyStop(_ context.Context, req StopRequest) error {
	n.mu.Lock()
	n.reqs = append(n.reqs, req)
	err, p := n.err, n.panic
	n.mu.Unlock()
	if p {
		panic("notifier exploded")
	}
	return err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reqs)
}

func (n *recordingNotifier) last() StopRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reqs[len(n.reqs)-1]
}

// recordingObserver records published snapshots.
type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (o *recordingObserver) SessionChanged(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) all() []Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Snapshot(nil), o.snaps...)
}

var errAudioDown = errors.New("audio service unavailable")

type harness struct {
	ctrl     *Controller
	clock    *clockwork.FakeClock
	audio    *fakeAudio
	notifier *recordingNotifier
	observer *recordingObserver
}

func newHarness(t *testing.T, level int) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClock(),
		audio:    newFakeAudio(level),
		notifier: &recordingNotifier{},
		observer: &recordingObserver{},
	}
	seq := 0
	h.ctrl = New(Options{
		Audio:    h.audio,
		Notifier: h.notifier,
		Observer: h.observer,
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewSessionID: func() string {
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
	})
	return h
}

// pollOnce waits for the pending tick to be registered, then fires it.
func (h *harness) pollOnce(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "no poll tick scheduled")
	h.clock.Advance(DefaultPollInterval)
}

// waitForQueries waits until the monitor has issued n level queries in total.
func (h *harness) waitForQueries(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.audio.queries() >= n },
		time.Second, time.Millisecond, "expected %d level queries", n)
}

package interrupt

import (
	"context"
	"log/slog"
	"sync"
)

// Interceptor sits first in the input path and decides, per volume key event, whether
// default handling may run.
//
// A press that stops playback is consumed together with its auto-repeats and its
// release, so holding the key down does not start changing the volume the moment the
// session goes idle.
type Interceptor struct {
	ctrl   *Controller
	logger *slog.Logger

	mu   sync.Mutex
	held map[KeyCode]struct{}
}

// NewInterceptor returns an interceptor gated by ctrl's session state.
func NewInterceptor(ctrl *Controller, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		ctrl:   ctrl,
		logger: logger,
		held:   make(map[KeyCode]struct{}),
	}
}

// Intercept never fails and never panics; when in doubt it forwards.
func (i *Interceptor) Intercept(ctx context.Context, ev KeyEvent) (d Disposition) {
	if !ev.Code.IsVolumeKey() {
		return Forward
	}

	stopped := false
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("key interceptor panicked", "key", ev.Code, "panic", r)
			if stopped {
				d = Consume
			}
		}
	}()

	// A press starts a new hold and a release ends one, so a lost release
	// cannot swallow the key past its next press.
	i.mu.Lock()
	_, held := i.held[ev.Code]
	if ev.State != KeyRepeat {
		delete(i.held, ev.Code)
	}
	i.mu.Unlock()

	switch {
	case held && ev.State != KeyPress && !i.ctrl.Active():
		// Tail of a press we already consumed.
		return Consume
	case ev.State == KeyRelease:
		return Forward
	}

	// A held repeat during a newer session is a fresh stop for that session.
	// Consume iff this event performed the transition; an idle session forwards.
	if !i.ctrl.RaiseStop(ctx, StopCause{Reason: ReasonVolumeKey, Key: ev.Code}) {
		return Forward
	}
	stopped = true

	i.mu.Lock()
	i.held[ev.Code] = struct{}{}
	i.mu.Unlock()

	i.logger.Debug("volume key consumed", "key", ev.Code)
	return Consume
}

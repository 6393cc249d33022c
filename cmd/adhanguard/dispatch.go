package main

import (
	"context"
	"fmt"
	"log/slog"

	"adhanguard/internal/interrupt"
)

// dispatcher maps IPC events onto the interrupt controller.
type dispatcher struct {
	ctrl   *interrupt.Controller
	audio  interrupt.AudioLevel
	logger *slog.Logger
}

func newDispatcher(ctrl *interrupt.Controller, audio interrupt.AudioLevel, logger *slog.Logger) *dispatcher {
	return &dispatcher{ctrl: ctrl, audio: audio, logger: logger}
}

// Handle implements EventHandler.
func (d *dispatcher) Handle(ctx context.Context, ev Event) (any, error) {
	switch e := ev.(type) {
	case PlaybackStarted:
		snap := d.ctrl.OnPlaybackStarted(ctx)
		d.logger.Info("playback started",
			"session", snap.SessionID,
			"source", e.Source,
			"title", e.Title,
			"level", snap.LastKnownLevel,
			"level_known", snap.LevelKnown,
		)
		return snap, nil

	case PlaybackStopped:
		if d.ctrl.OnPlaybackStopped() {
			d.logger.Info("playback stopped", "source", e.Source)
		} else {
			d.logger.Debug("playback stopped while idle", "source", e.Source)
		}
		return nil, nil

	case StopPlayback:
		raised := d.ctrl.RaiseStop(ctx, interrupt.StopCause{Reason: interrupt.ReasonManual})
		return map[string]bool{"raised": raised}, nil

	case VolumeStateQuery:
		cur, err := d.audio.Level(ctx)
		if err != nil {
			return nil, fmt.Errorf("query level: %w", err)
		}
		maxLevel, err := d.audio.MaxLevel(ctx)
		if err != nil {
			return nil, fmt.Errorf("query max level: %w", err)
		}
		return VolumeState{Current: cur, Max: maxLevel}, nil

	case SessionStateQuery:
		return d.ctrl.Snapshot(), nil

	default:
		return nil, fmt.Errorf("unhandled event type: %T", ev)
	}
}

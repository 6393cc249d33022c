package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"adhanguard/internal/interrupt"
)

// ============================================================================
// Daemon wiring
// ============================================================================
//
// runDaemon assembles the pieces and runs them until ctx is canceled:
//   - audio level backend (CamillaDSP or an external command)
//   - interrupt controller + key interceptor
//   - status websocket (stop requests go out here) and optional stop command
//   - IPC server (playback_started / playback_stopped come in here)
//   - evdev reader that routes volume keys through the interceptor
//
// Any component returning an error takes the whole daemon down.
// ============================================================================

func runDaemon(ctx context.Context, cfg Config, logger *slog.Logger) error {
	audio, closeAudio, err := newAudioLevel(cfg.Audio, logger)
	if err != nil {
		return err
	}
	defer closeAudio()

	ctrl, status := newController(cfg, audio, logger)
	interceptor := interrupt.NewInterceptor(ctrl, logger)
	disp := newDispatcher(ctrl, audio, logger)

	logger.Info("adhanguard starting",
		"version", version,
		"devices", cfg.Input.Devices,
		"grab", cfg.Input.Grab,
		"audio_backend", cfg.Audio.Backend,
		"poll_interval", cfg.PollInterval(),
		"ipc", cfg.IPC.SocketPath,
		"status_port", cfg.Status.Port,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		status.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		mux := newStatusMux(status, cfg.Status.Path, ctrl.Snapshot)
		return runHTTPServer(gctx, cfg.Status.Port, mux, logger)
	})
	g.Go(func() error {
		return runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), disp.Handle, logger)
	})
	g.Go(func() error {
		return runInput(gctx, cfg.Input, interceptor, logger)
	})

	err = g.Wait()

	// Disarm the monitor so no tick fires against closed backends.
	ctrl.OnPlaybackStopped()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("adhanguard stopped")
	return nil
}

// newController builds the controller and the status server it publishes to.
func newController(cfg Config, audio interrupt.AudioLevel, logger *slog.Logger) (*interrupt.Controller, *StatusServer) {
	var ctrl *interrupt.Controller
	status := NewStatusServer(logger, func() interrupt.Snapshot { return ctrl.Snapshot() }, HubConfig{})

	notifiers := multiNotifier{status.Hub()}
	if len(cfg.Stop.Command) > 0 {
		notifiers = append(notifiers, newCommandNotifier(cfg.Stop.Command, cfg.NotifyTimeout(), logger))
	}

	ctrl = interrupt.New(interrupt.Options{
		Audio:         audio,
		Notifier:      notifiers,
		Observer:      status.Hub(),
		PollInterval:  cfg.PollInterval(),
		QueryTimeout:  cfg.QueryTimeout(),
		NotifyTimeout: cfg.NotifyTimeout(),
		Logger:        logger,
	})
	return ctrl, status
}

// newAudioLevel returns the configured level backend and its cleanup.
func newAudioLevel(cfg AudioConfig, logger *slog.Logger) (interrupt.AudioLevel, func(), error) {
	switch cfg.Backend {
	case audioBackendCamillaDSP:
		client, err := NewCamillaDSPClient(cfg.CamillaDSP.WsURL, logger, cfg.CamillaDSP.TimeoutMS)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to CamillaDSP: %w", err)
		}
		return newCamillaLevel(client, cfg.CamillaDSP), func() { _ = client.Close() }, nil

	case audioBackendCommand:
		return newCommandLevel(cfg.Command, cfg.MaxLevel), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// runInput opens the key devices and feeds them through the router until ctx ends.
func runInput(ctx context.Context, cfg InputConfig, interceptor *interrupt.Interceptor, logger *slog.Logger) error {
	devices, err := openInputDevices(cfg.Devices, cfg.Grab, logger)
	if err != nil {
		return err
	}
	defer closeInputDevices(devices, logger)

	var sink eventSink = discardSink{}
	if cfg.Grab {
		u, err := newUinputDevice(cfg.UinputName)
		if err != nil {
			return err
		}
		defer u.Close()
		sink = u
	} else {
		logger.Warn("input devices are not grabbed; volume keys will still reach the system while adhan plays")
	}

	router := newKeyRouter(interceptor, sink, logger)
	return readInputEvents(ctx, devices, func(ev inputEvent) {
		router.route(ctx, ev)
	})
}

// keyRouter sends volume key events through the interceptor and forwards
// everything that is not consumed.
type keyRouter struct {
	interceptor *interrupt.Interceptor
	sink        eventSink
	logger      *slog.Logger
}

func newKeyRouter(interceptor *interrupt.Interceptor, sink eventSink, logger *slog.Logger) *keyRouter {
	return &keyRouter{interceptor: interceptor, sink: sink, logger: logger}
}

func (r *keyRouter) route(ctx context.Context, ev inputEvent) {
	if ev.Type == EV_KEY && ev.Value >= evValueRelease && ev.Value <= evValueRepeat {
		code := interrupt.KeyCode(ev.Code)
		if code.IsVolumeKey() {
			d := r.interceptor.Intercept(ctx, interrupt.KeyEvent{Code: code, State: interrupt.KeyState(ev.Value)})
			if d == interrupt.Consume {
				return
			}
		}
	}

	if err := r.sink.WriteEvent(ev); err != nil {
		r.logger.Warn("failed to forward input event", "type", ev.Type, "code", ev.Code, "error", err)
	}
}

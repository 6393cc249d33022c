package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"

	"adhanguard/internal/interrupt"
)

// listenOptions configures `adhanguard listen`.
type listenOptions struct {
	URL            string
	OnStop         []string
	ReconnectDelay time.Duration
}

// runListen follows the status websocket, printing each message as a JSON line.
// On stop_requested it runs OnStop, if set. It reconnects until ctx is canceled.
func runListen(ctx context.Context, opts listenOptions, out io.Writer, logger *slog.Logger) error {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}

	for {
		err := listenOnce(ctx, opts, out, logger)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("status connection lost; reconnecting", "url", opts.URL, "error", err, "delay", opts.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.ReconnectDelay):
		}
	}
}

func listenOnce(ctx context.Context, opts listenOptions, out io.Writer, logger *slog.Logger) error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.Close()

	logger.Info("connected to status websocket", "url", opts.URL)

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(msg))

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Warn("malformed status message", "error", err)
			continue
		}
		if env.Type != msgStopRequested || len(opts.OnStop) == 0 {
			continue
		}

		var req interrupt.StopRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			logger.Warn("malformed stop request", "error", err)
			continue
		}
		runOnStop(ctx, opts.OnStop, req, logger)
	}
}

func runOnStop(ctx context.Context, argv []string, req interrupt.StopRequest, logger *slog.Logger) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), stopRequestEnv(req)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		logger.Warn("on-stop command failed", "command", argv[0], "session_id", req.SessionID, "error", err)
	}
}

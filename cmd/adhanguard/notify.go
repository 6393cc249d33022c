package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"adhanguard/internal/interrupt"
)

// multiNotifier fans a stop request out to every notifier and joins their errors.
// One failing target never prevents delivery to the others.
type multiNotifier []interrupt.Notifier

func (m multiNotifier) NotifyStop(ctx context.Context, req interrupt.StopRequest) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyStop(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// commandNotifier runs a configured program once per stop request, e.g. ["mpc", "stop"].
//
// The program is started, not awaited: NotifyStop returns once it is running, and a
// background goroutine kills it if it outlives the timeout.
type commandNotifier struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

func newCommandNotifier(argv []string, timeout time.Duration, logger *slog.Logger) *commandNotifier {
	return &commandNotifier{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
	}
}

func (n *commandNotifier) NotifyStop(ctx context.Context, req interrupt.StopRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(n.argv[0], n.argv[1:]...)
	cmd.Env = append(os.Environ(), stopRequestEnv(req)...)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start stop command %s: %w", n.argv[0], err)
	}

	go func() {
		timer := time.AfterFunc(n.timeout, func() {
			n.logger.Warn("stop command timed out; killing", "command", n.argv[0], "timeout", n.timeout)
			_ = cmd.Process.Kill()
		})
		err := cmd.Wait()
		timer.Stop()
		if err != nil {
			n.logger.Warn("stop command failed", "command", n.argv[0], "session_id", req.SessionID, "error", err)
			return
		}
		n.logger.Debug("stop command finished", "command", n.argv[0], "session_id", req.SessionID)
	}()

	return nil
}

// stopRequestEnv describes req to the stop command through its environment.
func stopRequestEnv(req interrupt.StopRequest) []string {
	env := []string{
		"ADHANGUARD_SESSION_ID=" + req.SessionID,
		"ADHANGUARD_REASON=" + string(req.Reason),
	}
	if req.Key != "" {
		env = append(env,
			"ADHANGUARD_KEY="+req.Key,
			"ADHANGUARD_KEY_CODE="+strconv.Itoa(int(req.KeyCode)),
		)
	}
	if req.FromLevel != nil {
		env = append(env, "ADHANGUARD_FROM_LEVEL="+strconv.Itoa(*req.FromLevel))
	}
	if req.ToLevel != nil {
		env = append(env, "ADHANGUARD_TO_LEVEL="+strconv.Itoa(*req.ToLevel))
	}
	return env
}

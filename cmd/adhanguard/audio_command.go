package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// commandLevel reads the output level by running an external program that prints
// it on stdout, e.g. `pamixer --get-volume` or `wpctl get-volume @DEFAULT_AUDIO_SINK@`.
type commandLevel struct {
	argv     []string
	maxLevel int
}

func newCommandLevel(argv []string, maxLevel int) *commandLevel {
	return &commandLevel{argv: append([]string(nil), argv...), maxLevel: maxLevel}
}

func (l *commandLevel) Level(ctx context.Context) (int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.argv[0], l.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("run %s: %w (stderr: %s)", l.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return parseLevelOutput(stdout.String(), l.maxLevel)
}

func (l *commandLevel) MaxLevel(context.Context) (int, error) {
	return l.maxLevel, nil
}

// parseLevelOutput accepts "42", "42%" or "Volume: 0.42" (a fraction of maxLevel).
// The first numeric field is used; labels and flags such as "[MUTED]" are skipped.
func parseLevelOutput(out string, maxLevel int) (int, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("parse level: empty output")
	}
	for _, field := range fields {
		if strings.HasPrefix(field, "[") {
			continue
		}
		s := strings.TrimSuffix(field, "%")

		if n, err := strconv.Atoi(s); err == nil {
			if n < 0 || n > maxLevel {
				return 0, fmt.Errorf("parse level: %d outside [0, %d]", n, maxLevel)
			}
			return n, nil
		}

		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		if f < 0 || f > 1.5 {
			return 0, fmt.Errorf("parse level: fraction %v out of range", f)
		}
		n := int(f*float64(maxLevel) + 0.5)
		if n > maxLevel {
			n = maxLevel
		}
		return n, nil
	}
	return 0, fmt.Errorf("parse level %q: no numeric field", strings.TrimSpace(out))
}

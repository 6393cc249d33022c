//go:build !linux

package main

import (
	"context"
	"log/slog"
)

type inputDevice struct{}

func openInputDevices([]string, bool, *slog.Logger) ([]*inputDevice, error) {
	return nil, errUnsupportedPlatform
}

func closeInputDevices([]*inputDevice, *slog.Logger) {}

func readInputEvents(context.Context, []*inputDevice, func(inputEvent)) error {
	return errUnsupportedPlatform
}

func newUinputDevice(string) (eventSink, error) {
	return nil, errUnsupportedPlatform
}

package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestIPC(t *testing.T, handle EventHandler) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "adhanguard.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, handle, testLogger()) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("IPC server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		_, err := SendIPCEvent(context.Background(), socket, SessionStateQuery{})
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return socket
}

func TestIPC_RequestResponse(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Event
	)
	socket := startTestIPC(t, func(_ context.Context, ev Event) (any, error) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		switch ev.(type) {
		case VolumeStateQuery:
			return VolumeState{Current: 7, Max: 15}, nil
		case StopPlayback:
			return nil, errors.New("nothing playing")
		}
		return nil, nil
	})

	data, err := SendIPCEvent(context.Background(), socket, VolumeStateQuery{})
	require.NoError(t, err)
	require.JSONEq(t, `{"current":7,"max":15}`, string(data))

	data, err = SendIPCEvent(context.Background(), socket, PlaybackStarted{Source: "dhuhr"})
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = SendIPCEvent(context.Background(), socket, StopPlayback{})
	require.ErrorContains(t, err, "nothing playing")

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, got, Event(PlaybackStarted{Source: "dhuhr"}))
}

func TestIPC_NoDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	_, err := SendIPCEvent(context.Background(), socket, StopPlayback{})
	require.Error(t, err)
}

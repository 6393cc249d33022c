package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"adhanguard/internal/interrupt"
)

// These hub tests construct Clients with a nil websocket.Conn; the hub never
// writes to conns itself and guards Close against nil.

func runTestHub(t *testing.T, sendBuf, broadcastBuf int) *Hub {
	t.Helper()
	hub := NewHub(testLogger(), HubConfig{SendBuf: sendBuf, BroadcastBuf: broadcastBuf})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("timeout waiting for hub to stop")
		}
	})
	return hub
}

func registerTestClient(t *testing.T, hub *Hub, name string, buf int) *Client {
	t.Helper()
	c := &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name, logger: testLogger()}
	want := hub.ClientCount() + 1
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool { return hub.ClientCount() == want }, name+" not registered in time")
	return c
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := runTestHub(t, 4, 8)
	c1 := registerTestClient(t, hub, "c1", 4)
	c2 := registerTestClient(t, hub, "c2", 4)

	msg := []byte(`{"type":"session_started"}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := runTestHub(t, 1, 8)
	slow := registerTestClient(t, hub, "slow", 1)
	fast := registerTestClient(t, hub, "fast", 8)

	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"stop_requested"}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func TestHub_NotifyStopWithoutClients(t *testing.T) {
	hub := runTestHub(t, 4, 8)
	err := hub.NotifyStop(context.Background(), interrupt.StopRequest{SessionID: "s1"})
	if !errors.Is(err, interrupt.ErrNoListeners) {
		t.Fatalf("NotifyStop error = %v, want ErrNoListeners", err)
	}
}

func TestHub_NotifyStopPublishesRequest(t *testing.T) {
	hub := runTestHub(t, 4, 8)
	c := registerTestClient(t, hub, "player", 4)

	from, to := 7, 8
	req := interrupt.StopRequest{
		SessionID: "s1",
		Reason:    interrupt.ReasonLevelChanged,
		FromLevel: &from,
		ToLevel:   &to,
		At:        time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC),
	}
	if err := hub.NotifyStop(context.Background(), req); err != nil {
		t.Fatalf("NotifyStop: %v", err)
	}

	select {
	case raw := <-c.send:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != msgStopRequested {
			t.Fatalf("type = %q, want %q", env.Type, msgStopRequested)
		}
		var got interrupt.StopRequest
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.SessionID != "s1" || *got.FromLevel != 7 || *got.ToLevel != 8 {
			t.Fatalf("unexpected request: %+v", got)
		}
		if !env.Ts.Equal(req.At) {
			t.Fatalf("ts = %v, want %v", env.Ts, req.At)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for stop_requested")
	}
}

func TestHub_SessionChangedMessageTypes(t *testing.T) {
	hub := runTestHub(t, 4, 8)
	c := registerTestClient(t, hub, "ui", 4)

	hub.SessionChanged(interrupt.Snapshot{Active: true, SessionID: "s1"})
	hub.SessionChanged(interrupt.Snapshot{Active: false, SessionID: "s1"})

	for _, want := range []string{msgSessionStarted, msgSessionStopped} {
		select {
		case raw := <-c.send:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatal(err)
			}
			if env.Type != want {
				t.Fatalf("type = %q, want %q", env.Type, want)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestStatusServer_StateInitThenStopRequested(t *testing.T) {
	snap := interrupt.Snapshot{Active: true, SessionID: "s9", LastKnownLevel: 30, LevelKnown: true, MaxLevel: 100}
	status := NewStatusServer(testLogger(), func() interrupt.Snapshot { return snap }, HubConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go status.Hub().Run(ctx)

	srv := httptest.NewServer(newStatusMux(status, "/ws", func() interrupt.Snapshot { return snap }))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	if env.Type != msgStateInit {
		t.Fatalf("first message = %q, want %q", env.Type, msgStateInit)
	}
	var got interrupt.Snapshot
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s9" || got.LastKnownLevel != 30 {
		t.Fatalf("state_init snapshot = %+v", got)
	}

	waitUntil(t, time.Second, func() bool { return status.Hub().ClientCount() == 1 }, "client not registered")

	key := uint16(interrupt.KeyVolumeUp)
	if err := status.Hub().NotifyStop(context.Background(), interrupt.StopRequest{
		SessionID: "s9",
		Reason:    interrupt.ReasonVolumeKey,
		Key:       interrupt.KeyVolumeUp.String(),
		KeyCode:   key,
	}); err != nil {
		t.Fatalf("NotifyStop: %v", err)
	}

	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read stop_requested: %v", err)
	}
	if env.Type != msgStopRequested {
		t.Fatalf("second message = %q, want %q", env.Type, msgStopRequested)
	}
	var req interrupt.StopRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		t.Fatal(err)
	}
	if req.Key != "volume_up" || req.KeyCode != key {
		t.Fatalf("stop request = %+v", req)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

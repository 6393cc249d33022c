package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CamillaDSPClient manages WebSocket communication with CamillaDSP.
// Only the read side is used: adhanguard never changes the volume itself.
type CamillaDSPClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration

	retryAttempts int
	retryDelay    time.Duration
}

// NewCamillaDSPClient creates a new CamillaDSP client and establishes initial connection
func NewCamillaDSPClient(wsURL string, logger *slog.Logger, readTimeout int) (*CamillaDSPClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	client := &CamillaDSPClient{
		url:           wsURL,
		logger:        logger,
		readTimeout:   time.Duration(readTimeout) * time.Millisecond,
		retryAttempts: 10,
		retryDelay:    500 * time.Millisecond,
	}

	if err := client.connectWithRetry(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a WebSocket connection to CamillaDSP
func (c *CamillaDSPClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid ws url: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// connectWithRetry attempts to connect a bounded number of times
func (c *CamillaDSPClient) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("connected to CamillaDSP", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		time.Sleep(c.retryDelay)
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", c.retryAttempts, lastErr)
}

// ensureConnected reconnects once if the previous request broke the connection.
// The level monitor polls every few hundred milliseconds, so a single attempt is
// enough; a failed poll is simply treated as "unchanged".
func (c *CamillaDSPClient) ensureConnected() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Debug("connection lost; reconnecting...")
	return c.connect()
}

// sendAndRead sends a message and waits for a response. The read deadline is the
// earlier of the configured timeout and ctx's deadline.
func (c *CamillaDSPClient) sendAndRead(ctx context.Context, v any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("no websocket connection")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return nil, err
	}

	c.conn.SetReadDeadline(deadline)
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, err
	}

	return message, nil
}

// dropLocked discards a broken connection. Callers hold c.mu.
func (c *CamillaDSPClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the WebSocket connection
func (c *CamillaDSPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// GetVolume queries CamillaDSP for the current Main fader volume in dB.
func (c *CamillaDSPClient) GetVolume(ctx context.Context) (float64, error) {
	response, err := c.sendAndRead(ctx, "GetVolume")
	if err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}

	var volResp struct {
		GetVolume struct {
			Result string  `json:"result"`
			Value  float64 `json:"value"`
		} `json:"GetVolume"`
	}

	if err := json.Unmarshal(response, &volResp); err != nil {
		return 0, fmt.Errorf("parse GetVolume response: %w", err)
	}
	if volResp.GetVolume.Result != "" && volResp.GetVolume.Result != "Ok" {
		return 0, fmt.Errorf("get volume: camilladsp result %q", volResp.GetVolume.Result)
	}

	return volResp.GetVolume.Value, nil
}

// camillaLevel exposes the CamillaDSP fader as integer output levels in 0.01 dB
// steps above min_db (see dbToLevel).
type camillaLevel struct {
	client *CamillaDSPClient
	minDB  float64
	maxDB  float64
}

func newCamillaLevel(client *CamillaDSPClient, cfg CamillaDSPConfig) *camillaLevel {
	return &camillaLevel{
		client: client,
		minDB:  cfg.MinDB,
		maxDB:  cfg.MaxDB,
	}
}

func (l *camillaLevel) Level(ctx context.Context) (int, error) {
	db, err := l.client.GetVolume(ctx)
	if err != nil {
		return 0, err
	}
	return dbToLevel(db, l.minDB), nil
}

func (l *camillaLevel) MaxLevel(context.Context) (int, error) {
	return dbMaxLevel(l.minDB, l.maxDB), nil
}

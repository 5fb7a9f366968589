// Package push implements the persistent WebSocket client that delivers
// live transcript updates for one meeting.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meeting-sync-service/internal/config"
	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
	"meeting-sync-service/internal/observability/metrics"
)

// RetryPolicy controls automatic reconnection after an abnormal close.
// The delay doubles (times Multiplier) per attempt; after MaxAttempts the
// client gives up silently and the controller falls back to polling.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the production reconnection policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Delay returns the backoff delay before the given attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Options holds the tuning knobs for a push client.
type Options struct {
	PingInterval   time.Duration
	ConnectTimeout time.Duration
	Retry          RetryPolicy
}

// DefaultOptions returns the production push client settings.
func DefaultOptions() Options {
	return Options{
		PingInterval:   25 * time.Second,
		ConnectTimeout: 10 * time.Second,
		Retry:          DefaultRetryPolicy(),
	}
}

// wire is the envelope for every message on the channel.
type wire struct {
	Type      string           `json:"type"`
	Segments  []models.Segment `json:"segments,omitempty"`
	Status    string           `json:"status,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
}

// Client maintains one WebSocket connection per meeting and translates
// raw channel messages into transcript, status, and lifecycle events.
//
// Handler registration is single-subscriber: each Set* call replaces the
// previous handler for that event kind. Handler callbacks are invoked
// from the client's read goroutine, one at a time.
type Client struct {
	meeting models.MeetingID
	creds   config.ProviderConfig
	opts    Options
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	connected  bool
	closed     bool
	attempts   int
	pingDone   chan struct{}

	onTranscript   func([]models.Segment)
	onStatus       func(string)
	onError        func(error)
	onConnected    func()
	onDisconnected func()
}

// NewClient creates a push client for the given meeting.
func NewClient(meeting models.MeetingID, creds config.ProviderConfig, opts Options) *Client {
	return &Client{
		meeting: meeting,
		creds:   creds,
		opts:    opts,
		dialer:  websocket.DefaultDialer,
		logger:  logging.WithMeeting(meeting.String()).With().Str("component", "push").Logger(),
		metrics: metrics.DefaultMetrics,
	}
}

// SetOnTranscriptUpdate registers the transcript batch handler.
func (c *Client) SetOnTranscriptUpdate(h func([]models.Segment)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = h
}

// SetOnMeetingStatus registers the meeting status handler.
func (c *Client) SetOnMeetingStatus(h func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

// SetOnError registers the connection error handler.
func (c *Client) SetOnError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

// SetOnConnected registers the connected lifecycle handler.
func (c *Client) SetOnConnected(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = h
}

// SetOnDisconnected registers the disconnected lifecycle handler.
func (c *Client) SetOnDisconnected(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = h
}

// Connected reports whether the channel is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the channel. It is a no-op while a connection
// attempt or an open connection already exists. The attempt is bounded by
// the configured connect timeout; on failure the error is both returned
// and emitted through the error handler.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting || c.connected {
		c.mu.Unlock()
		return nil
	}
	if !c.creds.HasAPIKey() {
		c.mu.Unlock()
		return errors.New("no API key available for push connection")
	}
	if !c.meeting.Valid() {
		c.mu.Unlock()
		return fmt.Errorf("invalid meeting id %q: expected platform and native meeting id", c.meeting.String())
	}
	c.connecting = true
	c.closed = false
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/meetings/%s/%s?api_key=%s",
		c.creds.WSURL, c.meeting.Platform, c.meeting.NativeID, url.QueryEscape(c.creds.APIKey))

	c.logger.Info().Str("endpoint", c.creds.WSURL).Msg("Connecting push channel")

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		c.metrics.RecordPushConnect(err)

		connErr := fmt.Errorf("push channel connect failed: %w", err)
		if errors.Is(err, context.DeadlineExceeded) {
			connErr = fmt.Errorf("push channel connection timed out after %s", c.opts.ConnectTimeout)
		}
		c.logger.Warn().Err(err).Msg("Push channel connect failed")
		c.emitError(connErr)
		return connErr
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect raced the dial; drop the fresh connection.
		c.connecting = false
		c.mu.Unlock()
		conn.Close()
		return errors.New("push client disconnected during connect")
	}
	c.conn = conn
	c.connecting = false
	c.connected = true
	c.attempts = 0
	c.pingDone = make(chan struct{})
	pingDone := c.pingDone
	c.mu.Unlock()

	c.metrics.RecordPushConnect(nil)
	c.logger.Info().Msg("Push channel connected")

	go c.readLoop(conn)
	go c.pingLoop(conn, pingDone)

	if h := c.handlerConnected(); h != nil {
		h()
	}
	return nil
}

// Disconnect tears down the channel unconditionally, stops the keep-alive
// loop, and suppresses any further reconnection. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.attempts = 0
	c.connecting = false
	c.connected = false
	conn := c.conn
	c.conn = nil
	if c.pingDone != nil {
		close(c.pingDone)
		c.pingDone = nil
	}
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

// readLoop consumes messages until the connection drops, then decides
// between a clean shutdown and a reconnection attempt.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg wire
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Malformed push channel message")
		c.emitError(fmt.Errorf("malformed push channel message: %w", err))
		return
	}
	c.metrics.RecordPushMessage(msg.Type)

	switch msg.Type {
	case "transcript_update":
		for i := range msg.Segments {
			msg.Segments[i].Normalize()
		}
		if h := c.handlerTranscript(); h != nil && len(msg.Segments) > 0 {
			h(msg.Segments)
		}
	case "meeting_status":
		if h := c.handlerStatus(); h != nil {
			h(msg.Status)
		}
	case "error":
		message := msg.Message
		if message == "" {
			message = "push channel error"
		}
		c.emitError(errors.New(message))
	case "pong":
		// Keep-alive response.
	default:
		c.logger.Warn().Str("type", msg.Type).Msg("Unknown push channel message type")
	}
}

// handleClose runs exactly once per connection, from the read loop.
func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already replaced or torn down via Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	intentional := c.closed
	if c.pingDone != nil {
		close(c.pingDone)
		c.pingDone = nil
	}
	c.mu.Unlock()

	conn.Close()

	if h := c.handlerDisconnected(); h != nil {
		h()
	}

	clean := intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if clean {
		c.logger.Info().Msg("Push channel closed")
		return
	}

	c.logger.Warn().Err(err).Msg("Push channel closed abnormally")
	c.scheduleReconnect()
}

// scheduleReconnect retries with exponential backoff up to the policy's
// attempt cap, then gives up silently.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.attempts >= c.opts.Retry.MaxAttempts {
		exhausted := !c.closed
		c.mu.Unlock()
		if exhausted {
			c.logger.Warn().Int("attempts", c.opts.Retry.MaxAttempts).Msg("Push channel reconnect attempts exhausted")
		}
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	delay := c.opts.Retry.Delay(attempt)
	c.metrics.RecordPushReconnect()
	c.logger.Info().
		Int("attempt", attempt).
		Int("maxAttempts", c.opts.Retry.MaxAttempts).
		Dur("delay", delay).
		Msg("Scheduling push channel reconnect")

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.Connect(context.Background()); err != nil {
			c.scheduleReconnect()
		}
	})
}

// pingLoop sends a liveness probe at the configured interval until the
// connection closes.
func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(wire{Type: "ping"}); err != nil {
				c.logger.Debug().Err(err).Msg("Keep-alive write failed")
				return
			}
		}
	}
}

func (c *Client) emitError(err error) {
	if h := c.handlerError(); h != nil {
		h(err)
	}
}

func (c *Client) handlerTranscript() func([]models.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTranscript
}

func (c *Client) handlerStatus() func(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onStatus
}

func (c *Client) handlerError() func(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onError
}

func (c *Client) handlerConnected() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onConnected
}

func (c *Client) handlerDisconnected() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onDisconnected
}

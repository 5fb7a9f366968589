package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
	"meeting-sync-service/internal/observability/metrics"
	"meeting-sync-service/internal/provider"
)

// PushChannel is the push delivery source consumed by the controller.
// *push.Client satisfies it.
type PushChannel interface {
	Connect(ctx context.Context) error
	Disconnect()
	SetOnTranscriptUpdate(func([]models.Segment))
	SetOnMeetingStatus(func(string))
	SetOnError(func(error))
	SetOnConnected(func())
	SetOnDisconnected(func())
}

// PollLoop is the poll delivery source consumed by the controller.
// *poll.Poller satisfies it.
type PollLoop interface {
	Start()
	Stop()
	SetOnSnapshot(func(*provider.TranscriptSnapshot))
	SetOnError(func(error))
}

// BotControl is the external collaborator for remote bot lifecycle and
// configuration. *provider.Client satisfies it.
type BotControl interface {
	StopBot(ctx context.Context, meeting models.MeetingID) error
	UpdateBotConfig(ctx context.Context, meeting models.MeetingID, cfg provider.BotConfig) error
}

// SegmentSink receives every newly merged segment, e.g. for Kafka
// republication. Optional.
type SegmentSink interface {
	PublishSegment(ctx context.Context, meeting models.MeetingID, seg models.Segment) error
}

// Config wires a controller to its collaborators.
type Config struct {
	Meeting    models.MeetingID
	PreferPush bool
	Push       PushChannel
	Poller     PollLoop
	Bots       BotControl
	Sink       SegmentSink
}

// Controller is the sole owner of the merged transcript for one meeting
// session. Both delivery sources feed into it; it deduplicates by segment
// ID and preserves arrival order.
//
// Observer registration (SetOnSegments/SetOnError/SetOnStatus) is
// single-subscriber: each call replaces the previous handler for that
// event kind.
type Controller struct {
	meeting   models.MeetingID
	sessionID string
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	startTime time.Time

	mu            stdsync.Mutex
	state         State
	active        bool
	pushDisabled  bool
	pushConnected bool
	language      string
	segments      []models.Segment
	knownIDs      map[string]struct{}

	onSegments func([]models.Segment)
	onError    func(error)
	onStatus   func(string)
}

// NewController creates a controller for one sync session. Call Start to
// begin receiving updates.
func NewController(cfg Config) *Controller {
	sessionID := uuid.NewString()
	c := &Controller{
		meeting:   cfg.Meeting,
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logging.WithSession(cfg.Meeting.String(), sessionID).With().Str("component", "sync").Logger(),
		metrics:   metrics.DefaultMetrics,
		state:     StateInitializing,
		language:  "auto",
		knownIDs:  make(map[string]struct{}),
	}
	c.wireSources()
	return c
}

// wireSources registers the controller as the single subscriber of both
// delivery clients. Every callback re-checks the active flag so a delayed
// event from a stopped source cannot mutate state.
func (c *Controller) wireSources() {
	if c.cfg.Push != nil {
		c.cfg.Push.SetOnTranscriptUpdate(func(batch []models.Segment) {
			c.merge(batch)
		})
		c.cfg.Push.SetOnMeetingStatus(func(status string) {
			c.handleMeetingStatus(status)
		})
		c.cfg.Push.SetOnError(func(err error) {
			c.handlePushError(err)
		})
		c.cfg.Push.SetOnConnected(func() {
			c.handlePushConnected()
		})
		c.cfg.Push.SetOnDisconnected(func() {
			c.mu.Lock()
			c.pushConnected = false
			c.mu.Unlock()
		})
	}

	c.cfg.Poller.SetOnSnapshot(func(snap *provider.TranscriptSnapshot) {
		c.merge(snap.Segments)
		if snap.Language != "" {
			c.mu.Lock()
			if c.active {
				c.language = snap.Language
			}
			c.mu.Unlock()
		}
	})
	c.cfg.Poller.SetOnError(func(err error) {
		// Poll failures are per-cycle and non-fatal.
		c.emitError(err)
	})
}

// SetOnSegments registers the handler for newly appended segments.
func (c *Controller) SetOnSegments(h func([]models.Segment)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSegments = h
}

// SetOnError registers the error handler.
func (c *Controller) SetOnError(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = h
}

// SetOnStatus registers the meeting status handler.
func (c *Controller) SetOnStatus(h func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

// Start activates the session: push first when preferred and available,
// polling otherwise. A push connect failure falls back to polling rather
// than failing the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		return fmt.Errorf("sync session already started (state %s)", c.state)
	}
	c.active = true
	c.startTime = time.Now()
	usePush := c.cfg.PreferPush && c.cfg.Push != nil
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	c.logger.Info().Bool("preferPush", usePush).Msg("Starting sync session")

	if !usePush {
		c.enterPolling()
		return nil
	}

	if err := c.cfg.Push.Connect(ctx); err != nil {
		// handlePushError has already scheduled the fallback for emitted
		// errors; this covers precondition failures that never dialed.
		c.fallbackToPolling(err.Error())
	}
	return nil
}

// Stop ends the session, tears down both delivery sources, and notifies
// the remote bot-stop collaborator. Idempotent; the remote call happens
// only on the first invocation.
func (c *Controller) Stop(ctx context.Context) error {
	if !c.teardown() {
		return nil
	}
	if c.cfg.Bots != nil {
		if err := c.cfg.Bots.StopBot(ctx, c.meeting); err != nil {
			return fmt.Errorf("stop remote bot: %w", err)
		}
	}
	return nil
}

// Release ends the session without the remote bot-stop call. Used for
// view-level teardown where the remote meeting should keep running.
func (c *Controller) Release() {
	c.teardown()
}

// teardown returns true on the first call, false afterwards.
func (c *Controller) teardown() bool {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return false
	}
	c.state = StateStopped
	c.active = false
	c.pushConnected = false
	c.mu.Unlock()

	if c.cfg.Push != nil {
		c.cfg.Push.Disconnect()
	}
	c.cfg.Poller.Stop()

	c.metrics.RecordSessionEnd(time.Since(c.startTime).Seconds())
	c.logger.Info().Int("segments", c.SegmentCount()).Msg("Sync session stopped")
	return true
}

// SetLanguage changes the transcription language mid-session. The locally
// reported language changes only after the remote update succeeds. Merge
// state is unaffected.
func (c *Controller) SetLanguage(ctx context.Context, code string) error {
	if c.cfg.Bots == nil {
		return fmt.Errorf("no bot control configured")
	}
	if err := c.cfg.Bots.UpdateBotConfig(ctx, c.meeting, provider.BotConfig{Language: code}); err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	c.mu.Lock()
	c.language = code
	c.mu.Unlock()
	c.logger.Info().Str("language", code).Msg("Transcription language updated")
	return nil
}

// merge reconciles one incoming batch, from either source, into the
// ordered transcript. Known IDs are dropped; new segments are appended in
// batch order. Redelivery can never reorder or duplicate.
func (c *Controller) merge(batch []models.Segment) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	var added []models.Segment
	dropped := 0
	for _, seg := range batch {
		if _, known := c.knownIDs[seg.ID]; known {
			dropped++
			continue
		}
		c.knownIDs[seg.ID] = struct{}{}
		c.segments = append(c.segments, seg)
		added = append(added, seg)
	}
	h := c.onSegments
	c.mu.Unlock()

	c.metrics.RecordMerge(len(added), dropped)
	if len(added) == 0 {
		return
	}

	if c.cfg.Sink != nil {
		// Off the merge path: a slow broker must not delay delivery.
		go c.publish(added)
	}
	if h != nil {
		h(added)
	}
}

func (c *Controller) publish(added []models.Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, seg := range added {
		if err := c.cfg.Sink.PublishSegment(ctx, c.meeting, seg); err != nil {
			c.logger.Warn().Err(err).Str("segmentId", seg.ID).Msg("Segment publish failed")
		}
	}
}

func (c *Controller) handlePushConnected() {
	c.mu.Lock()
	if !c.active || c.pushDisabled {
		c.mu.Unlock()
		return
	}
	c.state = StatePushActive
	c.pushConnected = true
	c.mu.Unlock()
	c.logger.Info().Msg("Push channel live")
}

// handlePushError surfaces the error and permanently demotes the session
// to polling. A failed push attempt disables further push use for the
// whole session.
func (c *Controller) handlePushError(err error) {
	c.emitError(err)
	c.fallbackToPolling(err.Error())
}

func (c *Controller) handleMeetingStatus(status string) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	h := c.onStatus
	c.mu.Unlock()

	c.logger.Info().Str("status", status).Msg("Meeting status update")
	if h != nil {
		h(status)
	}
	if status == "stopped" || status == "ended" {
		c.teardown()
	}
}

// fallbackToPolling switches the live delivery mode to the poll loop.
// One-way: once a session has fallen back it never re-attempts push.
func (c *Controller) fallbackToPolling(reason string) {
	c.mu.Lock()
	if !c.active || c.pushDisabled {
		c.mu.Unlock()
		return
	}
	c.pushDisabled = true
	c.mu.Unlock()

	if c.cfg.Push != nil {
		c.cfg.Push.Disconnect()
	}
	c.metrics.RecordPushFallback()
	c.logger.Warn().Str("reason", reason).Msg("Falling back to transcript polling")
	c.enterPolling()
}

func (c *Controller) enterPolling() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.state = StatePollActive
	c.pushConnected = false
	c.mu.Unlock()

	c.cfg.Poller.Start()
}

func (c *Controller) emitError(err error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	h := c.onError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Meeting returns the meeting this session is bound to.
func (c *Controller) Meeting() models.MeetingID {
	return c.meeting
}

// SessionID returns the unique id of this sync session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the session is still receiving updates.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Language returns the currently displayed transcription language.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Segments returns a copy of the ordered transcript.
func (c *Controller) Segments() []models.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// SegmentCount returns the number of stored segments.
func (c *Controller) SegmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

// ParticipantCount returns the number of distinct named speakers seen so
// far. "Unknown" does not count.
func (c *Controller) ParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	speakers := make(map[string]struct{})
	for _, seg := range c.segments {
		if seg.Speaker != "" && seg.Speaker != models.UnknownSpeaker {
			speakers[seg.Speaker] = struct{}{}
		}
	}
	return len(speakers)
}

// ConnectionState summarizes the delivery mode for status display:
// "live", "connecting", "polling", or "stopped".
func (c *Controller) ConnectionState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateStopped:
		return "stopped"
	case c.pushConnected:
		return "live"
	case c.state == StatePollActive:
		return "polling"
	default:
		return "connecting"
	}
}

// Package provider implements the REST client for the external
// transcription provider: transcript snapshots, bot lifecycle, and bot
// configuration updates.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"meeting-sync-service/internal/config"
	"meeting-sync-service/internal/models"
)

// Client is an authenticated HTTP client for the provider REST API.
type Client struct {
	httpClient *http.Client
	cfg        config.ProviderConfig
	logger     zerolog.Logger
}

// NewClient creates a provider client from the given credentials and
// endpoints.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
		logger:     log.With().Str("component", "provider").Logger(),
	}
}

// TranscriptSnapshot is the full known transcript for a meeting at one
// point in time, as returned by the poll endpoint.
type TranscriptSnapshot struct {
	Meeting  models.MeetingID
	Language string
	Segments []models.Segment
}

// StartBotRequest holds the parameters for starting a transcription bot.
type StartBotRequest struct {
	Meeting  models.MeetingID
	Language string
	BotName  string
}

// BotConfig holds the mutable bot settings.
type BotConfig struct {
	Language string `json:"language"`
}

// GetTranscript fetches the complete current transcript snapshot for a
// meeting. Each returned segment is normalized, so IDs are stable across
// repeated fetches and across delivery paths.
func (c *Client) GetTranscript(ctx context.Context, meeting models.MeetingID) (*TranscriptSnapshot, error) {
	if !meeting.Valid() {
		return nil, ErrInvalidMeetingID
	}

	var body struct {
		Language string           `json:"language"`
		Segments []models.Segment `json:"segments"`
	}
	path := fmt.Sprintf("/transcripts/%s/%s", meeting.Platform, meeting.NativeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}

	for i := range body.Segments {
		body.Segments[i].Normalize()
	}

	language := body.Language
	if language == "" {
		language = "en"
	}

	return &TranscriptSnapshot{
		Meeting:  meeting,
		Language: language,
		Segments: body.Segments,
	}, nil
}

// StartBot requests a transcription bot for the meeting. A 409 response
// (bot already running) surfaces as an APIError with CategoryConflict.
func (c *Client) StartBot(ctx context.Context, req StartBotRequest) error {
	if !req.Meeting.Valid() {
		return ErrInvalidMeetingID
	}

	payload := map[string]string{
		"platform":          req.Meeting.Platform,
		"native_meeting_id": req.Meeting.NativeID,
	}
	if req.Language != "" && req.Language != "auto" {
		payload["language"] = req.Language
	}
	if req.BotName != "" {
		payload["bot_name"] = req.BotName
	}

	c.logger.Info().
		Str("meetingId", req.Meeting.String()).
		Str("language", req.Language).
		Msg("Starting meeting bot")

	return c.do(ctx, http.MethodPost, "/bots", payload, nil)
}

// StopBot stops the transcription bot for the meeting.
func (c *Client) StopBot(ctx context.Context, meeting models.MeetingID) error {
	if !meeting.Valid() {
		return ErrInvalidMeetingID
	}

	c.logger.Info().Str("meetingId", meeting.String()).Msg("Stopping meeting bot")

	path := fmt.Sprintf("/bots/%s/%s", meeting.Platform, meeting.NativeID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateBotConfig updates the bot's configuration mid-session, e.g. the
// transcription language.
func (c *Client) UpdateBotConfig(ctx context.Context, meeting models.MeetingID, cfg BotConfig) error {
	if !meeting.Valid() {
		return ErrInvalidMeetingID
	}

	c.logger.Info().
		Str("meetingId", meeting.String()).
		Str("language", cfg.Language).
		Msg("Updating bot config")

	path := fmt.Sprintf("/bots/%s/%s/config", meeting.Platform, meeting.NativeID)
	return c.do(ctx, http.MethodPut, path, cfg, nil)
}

// ListMeetings returns the meeting history known to the provider.
func (c *Client) ListMeetings(ctx context.Context) ([]models.Meeting, error) {
	var body struct {
		Meetings []struct {
			Platform  string    `json:"platform"`
			NativeID  string    `json:"native_meeting_id"`
			Status    string    `json:"status"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"meetings"`
	}
	if err := c.do(ctx, http.MethodGet, "/meetings", nil, &body); err != nil {
		return nil, err
	}

	meetings := make([]models.Meeting, 0, len(body.Meetings))
	for _, m := range body.Meetings {
		status := m.Status
		if status == "" {
			status = "stopped"
		}
		meetings = append(meetings, models.Meeting{
			MeetingID: models.MeetingID{Platform: m.Platform, NativeID: m.NativeID},
			Platform:  m.Platform,
			NativeID:  m.NativeID,
			Status:    status,
			StartTime: m.StartTime,
			EndTime:   m.EndTime,
		})
	}
	return meetings, nil
}

// do issues one authenticated request and decodes the response into out
// when out is non-nil. Non-2xx responses are classified into an APIError.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if !c.cfg.HasAPIKey() {
		return ErrMissingAPIKey
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	var errBody struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	// Best effort: the body may not be JSON.
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errBody)

	detail := errBody.Detail
	if detail == "" {
		detail = errBody.Message
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Category:   categorize(resp.StatusCode),
		Detail:     detail,
	}

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("category", apiErr.Category.String()).
		Str("detail", detail).
		Msg("Provider API request failed")

	return apiErr
}

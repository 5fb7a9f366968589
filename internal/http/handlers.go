package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
	"meeting-sync-service/internal/provider"
	"meeting-sync-service/internal/store"
	"meeting-sync-service/internal/sync"
	"meeting-sync-service/internal/viewer"
)

// BotStarter starts remote transcription bots. *provider.Client
// satisfies it.
type BotStarter interface {
	StartBot(ctx context.Context, req provider.StartBotRequest) error
	GetTranscript(ctx context.Context, meeting models.MeetingID) (*provider.TranscriptSnapshot, error)
	StopBot(ctx context.Context, meeting models.MeetingID) error
	UpdateBotConfig(ctx context.Context, meeting models.MeetingID, cfg provider.BotConfig) error
}

// Server holds the handler dependencies.
type Server struct {
	registry *sync.Registry
	bots     BotStarter
	store    store.MeetingStore
	hub      *viewer.Hub
	logger   zerolog.Logger
}

// NewServer wires the API handlers to their collaborators.
func NewServer(registry *sync.Registry, bots BotStarter, meetings store.MeetingStore, hub *viewer.Hub) *Server {
	return &Server{
		registry: registry,
		bots:     bots,
		store:    meetings,
		hub:      hub,
		logger:   logging.WithComponent("api"),
	}
}

type startMeetingRequest struct {
	Platform string `json:"platform"`
	NativeID string `json:"native_meeting_id"`
	Language string `json:"language,omitempty"`
	BotName  string `json:"bot_name,omitempty"`
}

type transcriptResponse struct {
	MeetingID        string           `json:"meetingId"`
	Language         string           `json:"language"`
	ConnectionState  string           `json:"connectionState"`
	ParticipantCount int              `json:"participantCount"`
	Segments         []models.Segment `json:"segments"`
}

// handleStartMeeting starts a remote bot and activates a sync session
// for it.
func (s *Server) handleStartMeeting(w http.ResponseWriter, r *http.Request) {
	var req startMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	meeting := models.MeetingID{Platform: req.Platform, NativeID: req.NativeID}
	if !meeting.Valid() {
		s.writeError(w, http.StatusBadRequest, provider.ErrInvalidMeetingID)
		return
	}

	err := s.bots.StartBot(r.Context(), provider.StartBotRequest{
		Meeting:  meeting,
		Language: req.Language,
		BotName:  req.BotName,
	})
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	if err := s.store.RecordStart(r.Context(), models.Meeting{
		MeetingID: meeting,
		Platform:  meeting.Platform,
		NativeID:  meeting.NativeID,
		Status:    "active",
		Language:  req.Language,
		BotName:   req.BotName,
		StartTime: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("meetingId", meeting.String()).Msg("Failed to record meeting start")
	}

	controller, created := s.registry.Acquire(meeting)
	if created {
		controller.SetOnSegments(func(batch []models.Segment) {
			s.hub.BroadcastSegments(meeting, batch)
		})
		controller.SetOnError(func(err error) {
			s.logger.Warn().Err(err).Str("meetingId", meeting.String()).Msg("Sync session error")
		})
		if err := controller.Start(r.Context()); err != nil {
			s.logger.Warn().Err(err).Str("meetingId", meeting.String()).Msg("Failed to start sync session")
		}
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"meetingId":       meeting.String(),
		"connectionState": controller.ConnectionState(),
	})
}

// handleStopMeeting ends the sync session and stops the remote bot.
func (s *Server) handleStopMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, ok := s.meetingFromURL(w, r)
	if !ok {
		return
	}

	if controller, exists := s.registry.Get(meeting); exists {
		err := controller.Stop(r.Context())
		s.registry.Remove(meeting)
		if err != nil {
			s.writeProviderError(w, err)
			return
		}
	} else if err := s.bots.StopBot(r.Context(), meeting); err != nil {
		s.writeProviderError(w, err)
		return
	}

	if err := s.store.RecordStop(r.Context(), meeting, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("meetingId", meeting.String()).Msg("Failed to record meeting stop")
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"meetingId": meeting.String(), "status": "stopped"})
}

// handleGetTranscript serves the merged transcript of an active session,
// falling back to a direct provider snapshot for inactive meetings.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	meeting, ok := s.meetingFromURL(w, r)
	if !ok {
		return
	}

	if controller, exists := s.registry.Get(meeting); exists {
		s.writeJSON(w, http.StatusOK, transcriptResponse{
			MeetingID:        meeting.String(),
			Language:         controller.Language(),
			ConnectionState:  controller.ConnectionState(),
			ParticipantCount: controller.ParticipantCount(),
			Segments:         controller.Segments(),
		})
		return
	}

	snapshot, err := s.bots.GetTranscript(r.Context(), meeting)
	if err != nil {
		s.writeProviderError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transcriptResponse{
		MeetingID:        meeting.String(),
		Language:         snapshot.Language,
		ConnectionState:  "stopped",
		ParticipantCount: countParticipants(snapshot.Segments),
		Segments:         snapshot.Segments,
	})
}

// handleUpdateConfig changes the bot configuration mid-session.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	meeting, ok := s.meetingFromURL(w, r)
	if !ok {
		return
	}

	var cfg provider.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if controller, exists := s.registry.Get(meeting); exists {
		if err := controller.SetLanguage(r.Context(), cfg.Language); err != nil {
			s.writeProviderError(w, err)
			return
		}
	} else if err := s.bots.UpdateBotConfig(r.Context(), meeting, cfg); err != nil {
		s.writeProviderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"meetingId": meeting.String(), "language": cfg.Language})
}

// handleListMeetings serves meeting history from the store.
func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

func (s *Server) meetingFromURL(w http.ResponseWriter, r *http.Request) (models.MeetingID, bool) {
	meeting := models.MeetingID{
		Platform: chi.URLParam(r, "platform"),
		NativeID: chi.URLParam(r, "nativeID"),
	}
	if !meeting.Valid() {
		s.writeError(w, http.StatusBadRequest, provider.ErrInvalidMeetingID)
		return models.MeetingID{}, false
	}
	return meeting, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeProviderError maps the provider error taxonomy onto HTTP statuses.
func (s *Server) writeProviderError(w http.ResponseWriter, err error) {
	var apiErr *provider.APIError
	switch {
	case errors.As(err, &apiErr):
		s.writeError(w, apiErr.StatusCode, err)
	case errors.Is(err, provider.ErrMissingAPIKey), errors.Is(err, provider.ErrInvalidMeetingID):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.writeError(w, http.StatusBadGateway, err)
	}
}

func countParticipants(segments []models.Segment) int {
	speakers := make(map[string]struct{})
	for _, seg := range segments {
		if seg.Speaker != "" && seg.Speaker != models.UnknownSpeaker {
			speakers[seg.Speaker] = struct{}{}
		}
	}
	return len(speakers)
}

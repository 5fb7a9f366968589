package sync

import (
	stdsync "sync"

	"github.com/rs/zerolog"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
)

// Factory builds a controller for a meeting. The registry calls it once
// per acquired meeting.
type Factory func(meeting models.MeetingID) *Controller

// Registry tracks the active sync session per meeting with an explicit
// acquire/release lifecycle, so sessions cannot leak across views and
// tests can construct a fresh registry.
type Registry struct {
	factory Factory
	logger  zerolog.Logger

	mu       stdsync.Mutex
	sessions map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		logger:   logging.WithComponent("registry"),
		sessions: make(map[string]*Controller),
	}
}

// Acquire returns the active controller for the meeting, creating one if
// none exists. A controller whose session already reached its terminal
// state is replaced with a fresh one, so a meeting whose remote side
// ended can be restarted. The caller is responsible for starting a newly
// created controller.
func (r *Registry) Acquire(meeting models.MeetingID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[meeting.String()]; ok && !c.State().IsTerminal() {
		return c, false
	}
	c := r.factory(meeting)
	r.sessions[meeting.String()] = c
	r.logger.Debug().
		Str("meetingId", meeting.String()).
		Int("active", len(r.sessions)).
		Msg("Sync session acquired")
	return c, true
}

// Get returns the active controller for the meeting, if any.
func (r *Registry) Get(meeting models.MeetingID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[meeting.String()]
	return c, ok
}

// Release removes the meeting's controller and releases its session
// without the remote bot-stop call.
func (r *Registry) Release(meeting models.MeetingID) {
	r.mu.Lock()
	c, ok := r.sessions[meeting.String()]
	delete(r.sessions, meeting.String())
	r.mu.Unlock()

	if ok {
		c.Release()
		r.logger.Debug().
			Str("meetingId", meeting.String()).
			Msg("Sync session released")
	}
}

// Remove removes the meeting's controller without touching its
// lifecycle. Used after an explicit Stop already tore the session down.
func (r *Registry) Remove(meeting models.MeetingID) {
	r.mu.Lock()
	delete(r.sessions, meeting.String())
	r.mu.Unlock()
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll releases every active session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		sessions = append(sessions, c)
	}
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Release()
	}
}

// Package store provides the meeting history store behind a
// request/response interface.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"meeting-sync-service/internal/models"
)

// MeetingStore records bot lifecycle events and serves meeting history.
type MeetingStore interface {
	// RecordStart upserts a meeting entry when a bot is started.
	RecordStart(ctx context.Context, meeting models.Meeting) error

	// RecordStop marks a meeting stopped at the given time.
	RecordStop(ctx context.Context, meeting models.MeetingID, endTime time.Time) error

	// Get returns the stored entry for a meeting.
	Get(ctx context.Context, meeting models.MeetingID) (*models.Meeting, error)

	// List returns all known meetings, most recently started first.
	List(ctx context.Context) ([]models.Meeting, error)
}

// Memory is an in-process MeetingStore for tests and redis-less
// deployments.
type Memory struct {
	mu       sync.Mutex
	meetings map[string]models.Meeting
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{meetings: make(map[string]models.Meeting)}
}

// RecordStart upserts a meeting entry.
func (s *Memory) RecordStart(_ context.Context, meeting models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[meeting.MeetingID.String()] = meeting
	return nil
}

// RecordStop marks a meeting stopped. Unknown meetings are ignored.
func (s *Memory) RecordStop(_ context.Context, meeting models.MeetingID, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meeting.String()]
	if !ok {
		return nil
	}
	m.Status = "stopped"
	m.EndTime = endTime
	s.meetings[meeting.String()] = m
	return nil
}

// Get returns the stored entry for a meeting, or nil when unknown.
func (s *Memory) Get(_ context.Context, meeting models.MeetingID) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.meetings[meeting.String()]; ok {
		return &m, nil
	}
	return nil, nil
}

// List returns all known meetings, most recently started first.
func (s *Memory) List(_ context.Context) ([]models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

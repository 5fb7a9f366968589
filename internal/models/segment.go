// Package models defines the data structures shared by the transcript
// delivery clients and the sync controller.
package models

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Segment is one transcribed utterance. Field tags follow the provider's
// wire names so the same struct decodes both push messages and poll
// snapshots.
type Segment struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Speaker      string    `json:"speaker"`
	Start        float64   `json:"start"`
	End          float64   `json:"end"`
	AbsoluteTime time.Time `json:"absolute_start_time"`
	Final        bool      `json:"is_final"`
}

// UnknownSpeaker is the display label used when the provider reports no
// speaker for a segment. It is excluded from participant counts.
const UnknownSpeaker = "Unknown"

// Normalize fills defaulted fields and assigns a deterministic ID.
// Both delivery paths run every incoming segment through this before it
// reaches the controller, so overlapping delivery of the same utterance
// converges on the same ID.
func (s *Segment) Normalize() {
	if s.Speaker == "" {
		s.Speaker = UnknownSpeaker
	}
	if s.ID == "" {
		s.ID = DeriveID(s.Start, s.Speaker, s.Text)
	}
}

// DeriveID computes a stable segment identifier from the start offset and a
// content hash. Identical utterances delivered via push and poll map to the
// same ID regardless of batch position.
func DeriveID(start float64, speaker, text string) string {
	h := fnv.New32a()
	h.Write([]byte(speaker))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("seg-%.3f-%08x", start, h.Sum32())
}

// MeetingID identifies a remote meeting resource as a platform plus the
// platform-native meeting id, e.g. google_meet/abc-defg-hij.
type MeetingID struct {
	Platform string
	NativeID string
}

// ParseMeetingID splits a "platform/nativeMeetingId" string into its parts.
func ParseMeetingID(s string) (MeetingID, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return MeetingID{}, fmt.Errorf("invalid meeting id %q: expected platform/nativeMeetingId", s)
	}
	return MeetingID{Platform: parts[0], NativeID: parts[1]}, nil
}

// String formats the id back to its platform/nativeMeetingId form.
func (m MeetingID) String() string {
	return m.Platform + "/" + m.NativeID
}

// Valid reports whether both components are present.
func (m MeetingID) Valid() bool {
	return m.Platform != "" && m.NativeID != ""
}

// Meeting is one entry in the meeting history store.
type Meeting struct {
	MeetingID MeetingID `json:"-"`
	Platform  string    `json:"platform"`
	NativeID  string    `json:"native_meeting_id"`
	Status    string    `json:"status"`
	Language  string    `json:"language,omitempty"`
	BotName   string    `json:"bot_name,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meeting-sync-service/internal/models"
)

const (
	keyPrefix = "meeting:"
	indexKey  = "meetings:index"
)

// Redis is a MeetingStore backed by Redis: one JSON value per meeting
// plus a sorted-set index scored by start time for ordered listing.
type Redis struct {
	client *redis.Client
}

// ConnectRedis establishes a connection and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// RecordStart upserts a meeting entry and indexes it by start time.
func (s *Redis) RecordStart(ctx context.Context, meeting models.Meeting) error {
	data, err := json.Marshal(meeting)
	if err != nil {
		return fmt.Errorf("failed to marshal meeting: %w", err)
	}
	key := meeting.MeetingID.String()
	if err := s.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("error storing meeting: %w", err)
	}
	err = s.client.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(meeting.StartTime.UnixMilli()),
		Member: key,
	}).Err()
	if err != nil {
		return fmt.Errorf("error indexing meeting: %w", err)
	}
	return nil
}

// RecordStop marks a meeting stopped. Unknown meetings are ignored.
func (s *Redis) RecordStop(ctx context.Context, meeting models.MeetingID, endTime time.Time) error {
	m, err := s.Get(ctx, meeting)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	m.Status = "stopped"
	m.EndTime = endTime

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal meeting: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+meeting.String(), data, 0).Err(); err != nil {
		return fmt.Errorf("error storing meeting: %w", err)
	}
	return nil
}

// Get returns the stored entry for a meeting, or nil when unknown.
func (s *Redis) Get(ctx context.Context, meeting models.MeetingID) (*models.Meeting, error) {
	data, err := s.client.Get(ctx, keyPrefix+meeting.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading meeting: %w", err)
	}
	var m models.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meeting: %w", err)
	}
	m.MeetingID = models.MeetingID{Platform: m.Platform, NativeID: m.NativeID}
	return &m, nil
}

// List returns all known meetings, most recently started first.
func (s *Redis) List(ctx context.Context) ([]models.Meeting, error) {
	keys, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading meeting index: %w", err)
	}

	out := make([]models.Meeting, 0, len(keys))
	for _, key := range keys {
		id, err := models.ParseMeetingID(key)
		if err != nil {
			continue
		}
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *Redis) Close() error {
	return s.client.Close()
}

// Package status keeps an advisory per-job progress record in Redis. The
// records are for dashboards and the HTTP status endpoint only; the queue
// and the database remain the source of truth.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aiprofile/internal/domain"
)

// State is a job's coarse progress marker.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Entry is the stored value for one job.
type Entry struct {
	State     State       `json:"state"`
	Kind      domain.Kind `json:"kind,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Store writes job progress entries with a fixed TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a status store. A zero ttl keeps entries for 24 hours.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(jobID string) string {
	return "aiprofile:job:" + jobID
}

// MarkRunning records that the job has been picked up.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.set(ctx, jobID, Entry{State: StateRunning})
}

// MarkDone records successful completion.
func (s *Store) MarkDone(ctx context.Context, jobID string) error {
	return s.set(ctx, jobID, Entry{State: StateDone})
}

// MarkFailed records a terminal failure with its stage classification.
func (s *Store) MarkFailed(ctx context.Context, jobID string, kind domain.Kind, detail string) error {
	return s.set(ctx, jobID, Entry{State: StateFailed, Kind: kind, Detail: detail})
}

// Get returns the entry for a job, or domain.ErrNotFound when none exists
// or it has expired.
func (s *Store) Get(ctx context.Context, jobID string) (*Entry, error) {
	data, err := s.client.Get(ctx, key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("status get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("status decode: %w", err)
	}
	return &entry, nil
}

func (s *Store) set(ctx context.Context, jobID string, entry Entry) error {
	entry.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("status encode: %w", err)
	}
	if err := s.client.Set(ctx, key(jobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("status set: %w", err)
	}
	return nil
}

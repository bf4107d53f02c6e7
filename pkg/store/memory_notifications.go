package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/model"
)

type pairKey struct {
	messageID   int64
	recipientID string
}

// MemoryNotifications is the single-process Notifications implementation.
type MemoryNotifications struct {
	mu   sync.Mutex
	rows map[pairKey]*model.NotificationRecord
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{rows: make(map[pairKey]*model.NotificationRecord)}
}

func (s *MemoryNotifications) Create(_ context.Context, rec model.NotificationRecord) (bool, error) {
	if rec.RecipientID == rec.SenderID {
		return false, fmt.Errorf("recipient equals sender: %w", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{rec.MessageID, rec.RecipientID}
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	copied := rec
	s.rows[key] = &copied
	return true, nil
}

func (s *MemoryNotifications) Get(_ context.Context, messageID int64, recipientID string) (*model.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[pairKey{messageID, recipientID}]
	if !ok {
		return nil, fmt.Errorf("notification (%d,%s): %w", messageID, recipientID, apperr.ErrNotFound)
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryNotifications) ListEmailEligible(_ context.Context, cutoff time.Time) ([]model.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.NotificationRecord
	for _, rec := range s.rows {
		if !rec.IsRead && !rec.IsEmailSent && !rec.SentTimestamp.After(cutoff) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentTimestamp.Before(out[j].SentTimestamp) })
	return out, nil
}

func (s *MemoryNotifications) ClaimEmail(_ context.Context, messageID int64, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[pairKey{messageID, recipientID}]
	if !ok {
		return false, fmt.Errorf("notification (%d,%s): %w", messageID, recipientID, apperr.ErrNotFound)
	}
	if rec.IsEmailSent {
		return false, nil
	}
	rec.IsEmailSent = true
	rec.EmailSentTimestamp = at
	return true, nil
}

func (s *MemoryNotifications) MarkRead(_ context.Context, messageID int64, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[pairKey{messageID, recipientID}]
	if !ok {
		return fmt.Errorf("notification (%d,%s): %w", messageID, recipientID, apperr.ErrNotFound)
	}
	if rec.IsRead {
		return nil
	}
	rec.IsRead = true
	rec.ReadTimestamp = at
	return nil
}

// MemoryCheckpoint is a process-local Checkpoint for tests and single-node
// runs that accept reprocessing after a restart (dedup makes that harmless).
type MemoryCheckpoint struct {
	mu sync.Mutex
	t  time.Time
}

func NewMemoryCheckpoint(start time.Time) *MemoryCheckpoint {
	return &MemoryCheckpoint{t: start}
}

func (c *MemoryCheckpoint) Load(_ context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t, nil
}

func (c *MemoryCheckpoint) Save(_ context.Context, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/model"
)

// ScyllaNotifications keys records by (message_id, recipient_id), so the
// dedup invariant is the primary key itself; Create is an INSERT IF NOT
// EXISTS and the email claim is a conditional update on is_email_sent.
type ScyllaNotifications struct {
	session *Session
}

func NewScyllaNotifications(session *Session) *ScyllaNotifications {
	return &ScyllaNotifications{session: session}
}

func (s *ScyllaNotifications) Create(ctx context.Context, rec model.NotificationRecord) (bool, error) {
	if rec.RecipientID == rec.SenderID {
		return false, fmt.Errorf("recipient equals sender: %w", apperr.ErrInvalidInput)
	}

	applied, err := s.session.Query(
		`INSERT INTO notifications (message_id, recipient_id, id, chat_id, sender_id,
		   sent_timestamp, is_read, is_email_sent)
		 VALUES (?, ?, ?, ?, ?, ?, false, false) IF NOT EXISTS`,
		rec.MessageID, rec.RecipientID, rec.ID, rec.ChatID, rec.SenderID, rec.SentTimestamp,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("create notification (%d,%s): %w", rec.MessageID, rec.RecipientID, err)
	}
	return applied, nil
}

func (s *ScyllaNotifications) Get(ctx context.Context, messageID int64, recipientID string) (*model.NotificationRecord, error) {
	var rec model.NotificationRecord
	err := s.session.Query(
		`SELECT message_id, recipient_id, id, chat_id, sender_id, sent_timestamp,
		   is_read, read_timestamp, is_email_sent, email_sent_timestamp
		 FROM notifications WHERE message_id = ? AND recipient_id = ?`,
		messageID, recipientID,
	).WithContext(ctx).Scan(&rec.MessageID, &rec.RecipientID, &rec.ID, &rec.ChatID,
		&rec.SenderID, &rec.SentTimestamp, &rec.IsRead, &rec.ReadTimestamp,
		&rec.IsEmailSent, &rec.EmailSentTimestamp)
	if err == gocql.ErrNotFound {
		return nil, fmt.Errorf("notification (%d,%s): %w", messageID, recipientID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification (%d,%s): %w", messageID, recipientID, err)
	}
	return &rec, nil
}

func (s *ScyllaNotifications) ListEmailEligible(ctx context.Context, cutoff time.Time) ([]model.NotificationRecord, error) {
	iter := s.session.Query(
		`SELECT message_id, recipient_id, id, chat_id, sender_id, sent_timestamp,
		   is_read, read_timestamp, is_email_sent, email_sent_timestamp
		 FROM notifications
		 WHERE is_read = false AND is_email_sent = false AND sent_timestamp <= ?
		 ALLOW FILTERING`, cutoff,
	).WithContext(ctx).Iter()

	var out []model.NotificationRecord
	var rec model.NotificationRecord
	for iter.Scan(&rec.MessageID, &rec.RecipientID, &rec.ID, &rec.ChatID,
		&rec.SenderID, &rec.SentTimestamp, &rec.IsRead, &rec.ReadTimestamp,
		&rec.IsEmailSent, &rec.EmailSentTimestamp) {
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list email eligible: %w", err)
	}
	return out, nil
}

func (s *ScyllaNotifications) ClaimEmail(ctx context.Context, messageID int64, recipientID string, at time.Time) (bool, error) {
	applied, err := s.session.Query(
		`UPDATE notifications SET is_email_sent = true, email_sent_timestamp = ?
		 WHERE message_id = ? AND recipient_id = ? IF is_email_sent = false`,
		at, messageID, recipientID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("claim email (%d,%s): %w", messageID, recipientID, err)
	}
	return applied, nil
}

func (s *ScyllaNotifications) MarkRead(ctx context.Context, messageID int64, recipientID string, at time.Time) error {
	applied, err := s.session.Query(
		`UPDATE notifications SET is_read = true, read_timestamp = ?
		 WHERE message_id = ? AND recipient_id = ? IF is_read = false`,
		at, messageID, recipientID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("mark read (%d,%s): %w", messageID, recipientID, err)
	}
	if applied {
		return nil
	}
	// Not applied: either already read (fine) or the pair does not exist.
	if _, err := s.Get(ctx, messageID, recipientID); err != nil {
		return err
	}
	return nil
}

package model

import "time"

// NotificationRecord tracks delivery state for one (message, recipient) pair.
// At most one record exists per pair; the recipient is never the sender.
type NotificationRecord struct {
	ID                 string    `json:"id"`
	MessageID          int64     `json:"message_id"`
	ChatID             string    `json:"chat_id"`
	SenderID           string    `json:"sender_id"`
	RecipientID        string    `json:"recipient_id"`
	SentTimestamp      time.Time `json:"sent_timestamp"`
	IsRead             bool      `json:"is_read"`
	ReadTimestamp      time.Time `json:"read_timestamp,omitzero"`
	IsEmailSent        bool      `json:"is_email_sent"`
	EmailSentTimestamp time.Time `json:"email_sent_timestamp,omitzero"`
}

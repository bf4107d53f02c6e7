// Package store holds the message log and the notification records.
//
// Both are mutated by multiple concurrent actors (hub sessions, the
// reconciler), so every mutation is a per-row atomic update guarded by a
// concurrency token rather than read-modify-write.
package store

import (
	"context"
	"time"

	"github.com/osetrov/messenger/pkg/model"
)

// Messages is the append-only, soft-mutable chat message log.
type Messages interface {
	// Append stores a new message. Empty content is apperr.ErrInvalidInput.
	Append(ctx context.Context, chatID, senderID, content string) (*model.Message, error)

	Get(ctx context.Context, messageID int64) (*model.Message, error)

	// Edit replaces content and marks the message edited. Only the sender
	// may edit; deleted messages reject edits with apperr.ErrInvalidState.
	// A lost compare-and-set race is apperr.ErrConflict.
	Edit(ctx context.Context, messageID int64, editorID, newContent string) (*model.Message, error)

	// Delete soft-deletes: content becomes model.DeletedPlaceholder and the
	// row stays. Deleting an already-deleted message is
	// apperr.ErrInvalidState.
	Delete(ctx context.Context, messageID int64, deleterID string) (*model.Message, error)

	// ListByChat returns the chat's messages in chronological order,
	// deleted ones included; callers filter as needed.
	ListByChat(ctx context.Context, chatID string) ([]model.Message, error)

	// ListSince returns messages with timestamp strictly after since,
	// across all chats, in chronological order.
	ListSince(ctx context.Context, since time.Time) ([]model.Message, error)
}

// Notifications is the per-(message, recipient) delivery bookkeeping.
type Notifications interface {
	// Create inserts the record unless one already exists for its
	// (MessageID, RecipientID) pair. It reports whether a row was inserted;
	// an existing pair is not an error.
	Create(ctx context.Context, rec model.NotificationRecord) (bool, error)

	Get(ctx context.Context, messageID int64, recipientID string) (*model.NotificationRecord, error)

	// ListEmailEligible returns unread, un-emailed records whose
	// SentTimestamp is at or before cutoff.
	ListEmailEligible(ctx context.Context, cutoff time.Time) ([]model.NotificationRecord, error)

	// ClaimEmail flips IsEmailSent false -> true atomically and reports
	// whether this caller won the claim. The reconciler claims before
	// invoking the email channel so a crash duplicates at most one send.
	ClaimEmail(ctx context.Context, messageID int64, recipientID string, at time.Time) (bool, error)

	// MarkRead sets IsRead and ReadTimestamp. Already-read records are a
	// no-op; unknown pairs are apperr.ErrNotFound.
	MarkRead(ctx context.Context, messageID int64, recipientID string, at time.Time) error
}

// Checkpoint persists the reconciler's exclusive timestamp boundary so a
// restart resumes where the previous run durably left off.
type Checkpoint interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, t time.Time) error
}

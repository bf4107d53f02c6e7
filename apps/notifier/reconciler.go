package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/osetrov/messenger/pkg/directory"
	"github.com/osetrov/messenger/pkg/email"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/store"
)

// Reconciler bridges the live delivery path and the offline email path. One
// instance runs at a time; iterations never overlap because the loop is a
// plain ticker around runOnce.
type Reconciler struct {
	messages      store.Messages
	notifications store.Notifications
	checkpoint    store.Checkpoint
	directory     directory.Directory
	presence      presence.Store
	email         email.Sender

	pollInterval time.Duration
	emailDelay   time.Duration
	now          func() time.Time
}

func NewReconciler(
	messages store.Messages,
	notifications store.Notifications,
	checkpoint store.Checkpoint,
	dir directory.Directory,
	ps presence.Store,
	sender email.Sender,
	pollInterval, emailDelay time.Duration,
) *Reconciler {
	return &Reconciler{
		messages:      messages,
		notifications: notifications,
		checkpoint:    checkpoint,
		directory:     dir,
		presence:      ps,
		email:         sender,
		pollInterval:  pollInterval,
		emailDelay:    emailDelay,
		now:           time.Now,
	}
}

// Run polls until the context is cancelled. A failed iteration is logged and
// the next tick retries from the same checkpoint; nothing here can take the
// process down.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if err := r.runOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("reconciler iteration failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) error {
	if err := r.ingest(ctx); err != nil {
		return err
	}
	return r.escalate(ctx)
}

// ingest turns newly observed messages into notification records and then
// advances the persisted checkpoint. Messages are processed in order and the
// checkpoint only covers fully processed ones. The boundary is exclusive, and
// the per-pair dedup in the store makes re-reading an overlap harmless.
func (r *Reconciler) ingest(ctx context.Context) error {
	since, err := r.checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		// First run: pick up the recent past instead of the whole log.
		since = r.now().Add(-5 * time.Minute)
	}

	msgs, err := r.messages.ListSince(ctx, since)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	processed := since
	var failure error
	for _, msg := range msgs {
		if err := r.recordMessage(ctx, msg); err != nil {
			// Stop here so the next tick retries this message. The saved
			// checkpoint must stay strictly below its timestamp: an earlier
			// message in the same millisecond has already advanced processed
			// to the shared stamp, and the exclusive boundary would then
			// never return the failed one again.
			failure = fmt.Errorf("message %d: %w", msg.ID, err)
			if limit := msg.Timestamp.Add(-time.Millisecond); limit.Before(processed) {
				processed = limit
			}
			break
		}
		if msg.Timestamp.After(processed) {
			processed = msg.Timestamp
		}
	}

	if processed.After(since) {
		if err := r.checkpoint.Save(ctx, processed); err != nil {
			return err
		}
	}
	return failure
}

func (r *Reconciler) recordMessage(ctx context.Context, msg model.Message) error {
	chat, err := r.directory.GetChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	for _, participantID := range chat.ParticipantIDs {
		if participantID == msg.SenderID {
			continue
		}
		created, err := r.notifications.Create(ctx, model.NotificationRecord{
			ID:            uuid.NewString(),
			MessageID:     msg.ID,
			ChatID:        msg.ChatID,
			SenderID:      msg.SenderID,
			RecipientID:   participantID,
			SentTimestamp: msg.Timestamp,
		})
		if err != nil {
			return err
		}
		if created {
			log.Printf("notification created for message %d recipient %s", msg.ID, participantID)
		}
	}
	return nil
}

// escalate emails recipients who are still offline once the delay has passed.
// The online check happens now, at escalation time, so a recipient who came
// online during the delay window is skipped. The record is claimed before the
// send; a crash in between costs at most one duplicate.
func (r *Reconciler) escalate(ctx context.Context) error {
	cutoff := r.now().Add(-r.emailDelay)
	eligible, err := r.notifications.ListEmailEligible(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, rec := range eligible {
		online, err := r.presence.IsOnline(ctx, rec.RecipientID)
		if err != nil {
			log.Printf("reconciler: online check for %s: %v", rec.RecipientID, err)
			continue
		}
		if online {
			continue
		}

		won, err := r.notifications.ClaimEmail(ctx, rec.MessageID, rec.RecipientID, r.now())
		if err != nil {
			log.Printf("reconciler: claim (%d,%s): %v", rec.MessageID, rec.RecipientID, err)
			continue
		}
		if !won {
			continue
		}

		subject, body := r.compose(ctx, rec)
		if err := r.email.Send(ctx, rec.RecipientID, subject, body); err != nil {
			// The claim already stuck; do not retry into a duplicate.
			log.Printf("reconciler: email (%d,%s): %v", rec.MessageID, rec.RecipientID, err)
		}
	}
	return nil
}

func (r *Reconciler) compose(ctx context.Context, rec model.NotificationRecord) (string, string) {
	subject := "You have a new message"
	body := fmt.Sprintf("New message from %s in chat %s. Sign in to read it.",
		rec.SenderID, rec.ChatID)

	if msg, err := r.messages.Get(ctx, rec.MessageID); err == nil && !msg.IsDeleted {
		body = fmt.Sprintf("New message from %s in chat %s: %q. Sign in to read it.",
			rec.SenderID, rec.ChatID, msg.Content)
	}
	return subject, body
}

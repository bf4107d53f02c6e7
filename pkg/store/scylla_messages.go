package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/snowflake"
)

// ScyllaMessages keeps the authoritative row in the id-keyed messages table
// and a denormalized copy in messages_by_chat for history reads. Edits and
// deletes go through a lightweight transaction on the update token.
type ScyllaMessages struct {
	session *Session
	node    *snowflake.Node
}

func NewScyllaMessages(session *Session, node *snowflake.Node) *ScyllaMessages {
	return &ScyllaMessages{session: session, node: node}
}

func (s *ScyllaMessages) Append(ctx context.Context, chatID, senderID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("append: empty content: %w", apperr.ErrInvalidInput)
	}
	if chatID == "" || senderID == "" {
		return nil, fmt.Errorf("append: missing chat or sender id: %w", apperr.ErrInvalidInput)
	}

	// Millisecond precision matches the timestamp column and the since feed.
	msg := model.Message{
		ID:        s.node.Generate(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now().Truncate(time.Millisecond),
	}

	if err := s.session.Query(
		`INSERT INTO messages (id, chat_id, sender_id, content, timestamp, is_edited, is_deleted, token)
		 VALUES (?, ?, ?, ?, ?, false, false, 1)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.Timestamp,
	).WithContext(ctx).Exec(); err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}
	if err := s.writeChatCopy(ctx, &msg); err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}
	return &msg, nil
}

func (s *ScyllaMessages) Get(ctx context.Context, messageID int64) (*model.Message, error) {
	msg, _, err := s.getWithToken(ctx, messageID)
	return msg, err
}

func (s *ScyllaMessages) Edit(ctx context.Context, messageID int64, editorID, newContent string) (*model.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, fmt.Errorf("edit: empty content: %w", apperr.ErrInvalidInput)
	}

	msg, token, err := s.getWithToken(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, fmt.Errorf("only the sender may edit: %w", apperr.ErrForbidden)
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("message %d is deleted: %w", messageID, apperr.ErrInvalidState)
	}

	msg.Content = newContent
	msg.IsEdited = true
	msg.Timestamp = time.Now().Truncate(time.Millisecond)
	if err := s.applyUpdate(ctx, msg, token); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ScyllaMessages) Delete(ctx context.Context, messageID int64, deleterID string) (*model.Message, error) {
	msg, token, err := s.getWithToken(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != deleterID {
		return nil, fmt.Errorf("only the sender may delete: %w", apperr.ErrForbidden)
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("message %d already deleted: %w", messageID, apperr.ErrInvalidState)
	}

	msg.IsDeleted = true
	msg.IsEdited = true
	msg.Content = model.DeletedPlaceholder
	msg.Timestamp = time.Now().Truncate(time.Millisecond)
	if err := s.applyUpdate(ctx, msg, token); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ScyllaMessages) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	iter := s.session.Query(
		`SELECT id, chat_id, sender_id, content, timestamp, is_edited, is_deleted
		 FROM messages_by_chat WHERE chat_id = ?`, chatID,
	).WithContext(ctx).Iter()

	messages, err := scanMessages(iter)
	if err != nil {
		return nil, fmt.Errorf("list by chat %s: %w", chatID, err)
	}
	return messages, nil
}

func (s *ScyllaMessages) ListSince(ctx context.Context, since time.Time) ([]model.Message, error) {
	// The reconciler polls a short trailing window, so the filtering scan
	// stays small. TODO: move to a day-bucketed messages_by_time table if
	// the log grows past what a filtered scan tolerates.
	iter := s.session.Query(
		`SELECT id, chat_id, sender_id, content, timestamp, is_edited, is_deleted
		 FROM messages WHERE timestamp > ? ALLOW FILTERING`, since,
	).WithContext(ctx).Iter()

	messages, err := scanMessages(iter)
	if err != nil {
		return nil, fmt.Errorf("list since %s: %w", since, err)
	}
	sortChronological(messages)
	return messages, nil
}

func (s *ScyllaMessages) getWithToken(ctx context.Context, messageID int64) (*model.Message, int64, error) {
	var msg model.Message
	var token int64
	err := s.session.Query(
		`SELECT id, chat_id, sender_id, content, timestamp, is_edited, is_deleted, token
		 FROM messages WHERE id = ?`, messageID,
	).WithContext(ctx).Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content,
		&msg.Timestamp, &msg.IsEdited, &msg.IsDeleted, &token)
	if err == gocql.ErrNotFound {
		return nil, 0, fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get message %d: %w", messageID, err)
	}
	return &msg, token, nil
}

// applyUpdate is the per-message compare-and-set: the update only lands if
// the token is still the one we read, so concurrent edits never interleave.
func (s *ScyllaMessages) applyUpdate(ctx context.Context, msg *model.Message, token int64) error {
	applied, err := s.session.Query(
		`UPDATE messages SET content = ?, timestamp = ?, is_edited = ?, is_deleted = ?, token = ?
		 WHERE id = ? IF token = ?`,
		msg.Content, msg.Timestamp, msg.IsEdited, msg.IsDeleted, token+1, msg.ID, token,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("update message %d: %w", msg.ID, err)
	}
	if !applied {
		return fmt.Errorf("message %d changed concurrently: %w", msg.ID, apperr.ErrConflict)
	}
	return s.writeChatCopy(ctx, msg)
}

func (s *ScyllaMessages) writeChatCopy(ctx context.Context, msg *model.Message) error {
	return s.session.Query(
		`INSERT INTO messages_by_chat (chat_id, id, sender_id, content, timestamp, is_edited, is_deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.ID, msg.SenderID, msg.Content, msg.Timestamp, msg.IsEdited, msg.IsDeleted,
	).WithContext(ctx).Exec()
}

func scanMessages(iter *gocql.Iter) ([]model.Message, error) {
	var messages []model.Message
	var msg model.Message
	for iter.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content,
		&msg.Timestamp, &msg.IsEdited, &msg.IsDeleted) {
		messages = append(messages, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

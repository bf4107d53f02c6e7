package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/snowflake"
)

type storedMessage struct {
	msg   model.Message
	token int64
}

// MemoryMessages is the single-process Messages implementation. Rows carry
// the same update token the Scylla implementation uses, so edit/delete keep
// compare-and-set semantics even in memory.
type MemoryMessages struct {
	mu   sync.Mutex
	rows map[int64]*storedMessage
	node *snowflake.Node
	now  func() time.Time
}

func NewMemoryMessages(node *snowflake.Node) *MemoryMessages {
	return &MemoryMessages{
		rows: make(map[int64]*storedMessage),
		node: node,
		now:  time.Now,
	}
}

func (s *MemoryMessages) Append(_ context.Context, chatID, senderID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("append: empty content: %w", apperr.ErrInvalidInput)
	}
	if chatID == "" || senderID == "" {
		return nil, fmt.Errorf("append: missing chat or sender id: %w", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := model.Message{
		ID:        s.node.Generate(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: s.now().Truncate(time.Millisecond),
	}
	s.rows[msg.ID] = &storedMessage{msg: msg, token: 1}
	return &msg, nil
}

func (s *MemoryMessages) Get(_ context.Context, messageID int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}
	msg := row.msg
	return &msg, nil
}

func (s *MemoryMessages) Edit(_ context.Context, messageID int64, editorID, newContent string) (*model.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, fmt.Errorf("edit: empty content: %w", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}
	if row.msg.SenderID != editorID {
		return nil, fmt.Errorf("only the sender may edit: %w", apperr.ErrForbidden)
	}
	if row.msg.IsDeleted {
		return nil, fmt.Errorf("message %d is deleted: %w", messageID, apperr.ErrInvalidState)
	}

	row.msg.Content = newContent
	row.msg.IsEdited = true
	row.msg.Timestamp = s.now().Truncate(time.Millisecond)
	row.token++
	msg := row.msg
	return &msg, nil
}

func (s *MemoryMessages) Delete(_ context.Context, messageID int64, deleterID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}
	if row.msg.SenderID != deleterID {
		return nil, fmt.Errorf("only the sender may delete: %w", apperr.ErrForbidden)
	}
	if row.msg.IsDeleted {
		return nil, fmt.Errorf("message %d already deleted: %w", messageID, apperr.ErrInvalidState)
	}

	row.msg.IsDeleted = true
	row.msg.IsEdited = true
	row.msg.Content = model.DeletedPlaceholder
	row.msg.Timestamp = s.now().Truncate(time.Millisecond)
	row.token++
	msg := row.msg
	return &msg, nil
}

func (s *MemoryMessages) ListByChat(_ context.Context, chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, row := range s.rows {
		if row.msg.ChatID == chatID {
			out = append(out, row.msg)
		}
	}
	sortChronological(out)
	return out, nil
}

func (s *MemoryMessages) ListSince(_ context.Context, since time.Time) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, row := range s.rows {
		if row.msg.Timestamp.After(since) {
			out = append(out, row.msg)
		}
	}
	sortChronological(out)
	return out, nil
}

func sortChronological(msgs []model.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

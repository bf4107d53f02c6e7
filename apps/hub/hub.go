package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/bus"
	"github.com/osetrov/messenger/pkg/directory"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/store"
)

// Hub holds this instance's live sessions and their chat-group joins. All
// fanout goes through the bus, so every instance (this one included) applies
// an event to its own connections; the maps here are purely local state.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session             // conn id -> session
	groups   map[string]map[*Session]struct{} // chat id -> joined sessions

	presence  presence.Store
	messages  store.Messages
	directory directory.Directory
	bus       bus.Bus
}

// NewHub wires the hub to its bus; newBus receives the hub's delivery
// callback so consumed events fan out to local sessions.
func NewHub(ps presence.Store, ms store.Messages, dir directory.Directory, newBus func(bus.Handler) bus.Bus) *Hub {
	h := &Hub{
		sessions:  make(map[string]*Session),
		groups:    make(map[string]map[*Session]struct{}),
		presence:  ps,
		messages:  ms,
		directory: dir,
	}
	h.bus = newBus(h.deliver)
	return h
}

func (h *Hub) Close() error {
	return h.bus.Close()
}

// register adds a fresh session and marks its user connected.
func (h *Hub) register(ctx context.Context, s *Session) {
	h.mu.Lock()
	h.sessions[s.ConnID] = s
	h.mu.Unlock()

	if err := h.presence.Connect(ctx, s.UserID, s.ConnID); err != nil {
		log.Printf("hub: presence connect %s: %v", s.ConnID, err)
	}
	log.Printf("session registered: user %s conn %s", s.UserID, s.ConnID)
}

// unregister deterministically releases the session's group memberships and
// presence entry. The offline broadcast is scoped to the chats the session
// was joined to; users who share no live chat with the subject learn nothing.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ConnID)
	chats := make([]string, 0, len(s.joined))
	for chatID := range s.joined {
		chats = append(chats, chatID)
		h.removeFromGroupLocked(s, chatID)
		delete(s.joined, chatID)
	}
	h.mu.Unlock()

	s.close()

	ctx := context.Background()
	userID, wentOffline, err := h.presence.Disconnect(ctx, s.ConnID)
	if err != nil {
		log.Printf("hub: presence disconnect %s: %v", s.ConnID, err)
	}
	log.Printf("session unregistered: user %s conn %s", s.UserID, s.ConnID)

	if wentOffline && len(chats) > 0 {
		if err := h.bus.Publish(ctx, model.Event{
			Type:    model.EventUserStatus,
			UserID:  userID,
			ChatIDs: chats,
		}); err != nil {
			log.Printf("hub: publish offline status for %s: %v", userID, err)
		}
	}
}

// NotifyExpired is invoked by the presence store when TTL expiry, not an
// explicit disconnect, takes a user offline.
func (h *Hub) NotifyExpired(userID string) {
	chats := h.chatsOfUser(userID)
	if len(chats) == 0 {
		return
	}
	if err := h.bus.Publish(context.Background(), model.Event{
		Type:    model.EventUserStatus,
		UserID:  userID,
		ChatIDs: chats,
	}); err != nil {
		log.Printf("hub: publish expiry status for %s: %v", userID, err)
	}
}

// WatchPresence periodically verifies that users with live local sessions are
// still marked online. When presence lives in Redis a TTL expiry happens
// server-side with no callback, so the transition is observed by polling; the
// in-memory store reports expiry through OnOffline instead.
func (h *Hub) WatchPresence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepPresence(ctx)
		}
	}
}

func (h *Hub) sweepPresence(ctx context.Context) {
	h.mu.RLock()
	users := make(map[string]struct{}, len(h.sessions))
	for _, s := range h.sessions {
		users[s.UserID] = struct{}{}
	}
	h.mu.RUnlock()

	for userID := range users {
		online, err := h.presence.IsOnline(ctx, userID)
		if err != nil {
			log.Printf("hub: presence sweep %s: %v", userID, err)
			continue
		}
		if !online {
			h.NotifyExpired(userID)
		}
	}
}

func (h *Hub) chatsOfUser(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for chatID, members := range h.groups {
		for s := range members {
			if s.UserID == userID {
				seen[chatID] = struct{}{}
				break
			}
		}
	}
	chats := make([]string, 0, len(seen))
	for chatID := range seen {
		chats = append(chats, chatID)
	}
	return chats
}

// dispatch runs one command on behalf of a session. Failures go back to the
// caller only; nothing is broadcast for a failed command.
func (h *Hub) dispatch(ctx context.Context, s *Session, cmd model.Command) {
	var err error
	switch cmd.Type {
	case model.CmdSendMessage:
		err = h.sendMessage(ctx, s, cmd.ChatID, cmd.Content)
	case model.CmdEditMessage:
		err = h.editMessage(ctx, s, cmd.ChatID, cmd.MessageID, cmd.Content)
	case model.CmdDeleteMessage:
		err = h.deleteMessage(ctx, s, cmd.ChatID, cmd.MessageID)
	case model.CmdJoinChat:
		err = h.joinChat(ctx, s, cmd.ChatID)
	case model.CmdLeaveChat:
		h.leaveChat(s, cmd.ChatID)
	case model.CmdTyping:
		err = h.typing(ctx, s, cmd.ChatID)
	case model.CmdIsOnline:
		err = h.isOnline(ctx, s, cmd.UserID)
	default:
		err = fmt.Errorf("unknown command %q: %w", cmd.Type, apperr.ErrInvalidInput)
	}

	if err != nil {
		log.Printf("hub: %s from %s failed: %v", cmd.Type, s.UserID, err)
		s.trySend(model.Event{
			Type:   model.EventError,
			Op:     string(cmd.Type),
			Reason: apperr.Reason(err),
		})
	}
}

func (h *Hub) sendMessage(ctx context.Context, s *Session, chatID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("send: empty content: %w", apperr.ErrInvalidInput)
	}
	// Membership is checked before the append so a rejected send leaves the
	// store untouched: either the message exists and is broadcast, or neither.
	if err := h.requireParticipant(ctx, chatID, s.UserID); err != nil {
		return err
	}

	msg, err := h.messages.Append(ctx, chatID, s.UserID, content)
	if err != nil {
		return err
	}

	return h.bus.Publish(ctx, model.Event{
		Type:    model.EventMessageReceived,
		ChatID:  chatID,
		Message: msg,
	})
}

func (h *Hub) editMessage(ctx context.Context, s *Session, chatID string, messageID int64, newContent string) error {
	if err := h.requireMessageInChat(ctx, chatID, messageID); err != nil {
		return err
	}
	if err := h.requireParticipant(ctx, chatID, s.UserID); err != nil {
		return err
	}

	msg, err := h.messages.Edit(ctx, messageID, s.UserID, newContent)
	if err != nil {
		return err
	}

	return h.bus.Publish(ctx, model.Event{
		Type:      model.EventMessageEdited,
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		IsEdited:  msg.IsEdited,
	})
}

func (h *Hub) deleteMessage(ctx context.Context, s *Session, chatID string, messageID int64) error {
	if err := h.requireMessageInChat(ctx, chatID, messageID); err != nil {
		return err
	}
	if err := h.requireParticipant(ctx, chatID, s.UserID); err != nil {
		return err
	}

	msg, err := h.messages.Delete(ctx, messageID, s.UserID)
	if err != nil {
		return err
	}

	return h.bus.Publish(ctx, model.Event{
		Type:      model.EventMessageDeleted,
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		IsDeleted: msg.IsDeleted,
	})
}

func (h *Hub) joinChat(ctx context.Context, s *Session, chatID string) error {
	// Every join re-validates against the directory rather than a cache, so
	// removal from a chat is honored immediately for future joins.
	if err := h.requireParticipant(ctx, chatID, s.UserID); err != nil {
		return err
	}

	h.mu.Lock()
	if h.groups[chatID] == nil {
		h.groups[chatID] = make(map[*Session]struct{})
	}
	h.groups[chatID][s] = struct{}{}
	s.joined[chatID] = struct{}{}
	h.mu.Unlock()

	if err := h.presence.Connect(ctx, s.UserID, s.ConnID); err != nil {
		log.Printf("hub: presence connect on join %s: %v", s.ConnID, err)
	}

	s.trySend(model.Event{Type: model.EventInfo, Text: "joined chat " + chatID})

	return h.bus.Publish(ctx, model.Event{
		Type:     model.EventUserStatus,
		UserID:   s.UserID,
		IsOnline: true,
		ChatIDs:  []string{chatID},
	})
}

// leaveChat always succeeds locally; there is nothing to validate.
func (h *Hub) leaveChat(s *Session, chatID string) {
	h.mu.Lock()
	h.removeFromGroupLocked(s, chatID)
	delete(s.joined, chatID)
	h.mu.Unlock()

	s.trySend(model.Event{Type: model.EventInfo, Text: "left chat " + chatID})
}

func (h *Hub) typing(ctx context.Context, s *Session, chatID string) error {
	h.mu.RLock()
	_, joined := s.joined[chatID]
	h.mu.RUnlock()
	if !joined {
		return fmt.Errorf("typing in a chat not joined: %w", apperr.ErrForbidden)
	}

	return h.bus.Publish(ctx, model.Event{
		Type:   model.EventTyping,
		ChatID: chatID,
		UserID: s.UserID,
	})
}

func (h *Hub) isOnline(ctx context.Context, s *Session, userID string) error {
	online, err := h.presence.IsOnline(ctx, userID)
	if err != nil {
		return fmt.Errorf("is-online %s: %v: %w", userID, err, apperr.ErrUnavailable)
	}
	s.trySend(model.Event{Type: model.EventOnline, UserID: userID, IsOnline: online})
	return nil
}

// requireParticipant is fail-closed: an unreachable directory rejects the
// command the same way a failed membership check does, so nothing is ever
// broadcast to an unverified audience.
func (h *Hub) requireParticipant(ctx context.Context, chatID, userID string) error {
	if chatID == "" {
		return fmt.Errorf("empty chat id: %w", apperr.ErrInvalidInput)
	}
	chat, err := h.directory.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return fmt.Errorf("user %s is not in chat %s: %w", userID, chatID, apperr.ErrForbidden)
	}
	return nil
}

func (h *Hub) requireMessageInChat(ctx context.Context, chatID string, messageID int64) error {
	msg, err := h.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ChatID != chatID {
		return fmt.Errorf("message %d is not in chat %s: %w", messageID, chatID, apperr.ErrNotFound)
	}
	return nil
}

func (h *Hub) removeFromGroupLocked(s *Session, chatID string) {
	if members, ok := h.groups[chatID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.groups, chatID)
		}
	}
}

// deliver fans one bus event out to this instance's sessions. Slow consumers
// are dropped rather than allowed to stall everyone else.
func (h *Hub) deliver(ev model.Event) {
	var targets []*Session

	h.mu.RLock()
	switch {
	case len(ev.ChatIDs) > 0:
		seen := make(map[*Session]struct{})
		for _, chatID := range ev.ChatIDs {
			for s := range h.groups[chatID] {
				seen[s] = struct{}{}
			}
		}
		for s := range seen {
			targets = append(targets, s)
		}
	case ev.ChatID != "":
		for s := range h.groups[ev.ChatID] {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	var stalled []*Session
	for _, s := range targets {
		if !s.trySend(ev) {
			stalled = append(stalled, s)
		}
	}
	for _, s := range stalled {
		log.Printf("hub: dropping stalled session %s", s.ConnID)
		// deliver can run on the bus dispatch goroutine and unregister
		// publishes, so the drop must not run inline: with a full bus buffer
		// that publish would wait on the very goroutine executing here.
		go h.unregister(s)
	}
}

package model

import "time"

// CommandType tags client-to-server hub commands.
type CommandType string

const (
	CmdSendMessage   CommandType = "send-message"
	CmdEditMessage   CommandType = "edit-message"
	CmdDeleteMessage CommandType = "delete-message"
	CmdJoinChat      CommandType = "join-chat"
	CmdLeaveChat     CommandType = "leave-chat"
	CmdTyping        CommandType = "typing"
	CmdIsOnline      CommandType = "is-online"
)

// Command is the tagged union a session reads off the wire. The sender
// identity always comes from the connection's token claims, never from the
// payload.
type Command struct {
	Type      CommandType `json:"type"`
	ChatID    string      `json:"chat_id,omitempty"`
	MessageID int64       `json:"message_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
}

// EventType tags server-to-client events.
type EventType string

const (
	EventMessageReceived EventType = "message-received"
	EventMessageEdited   EventType = "message-edited"
	EventMessageDeleted  EventType = "message-deleted"
	EventUserStatus      EventType = "user-status-changed"
	EventTyping          EventType = "typing"
	EventOnline          EventType = "online"
	EventError           EventType = "error"
	EventInfo            EventType = "info"
)

// Event is both the websocket frame sent to clients and the fanout envelope
// published on the bus. ChatID scopes an event to one chat group; ChatIDs is
// used by presence events that target every group the subject was joined to.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	ChatIDs   []string  `json:"chat_ids,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	IsOnline  bool      `json:"is_online,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	IsEdited  bool      `json:"is_edited,omitempty"`
	IsDeleted bool      `json:"is_deleted,omitempty"`
	Op        string    `json:"op,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Text      string    `json:"text,omitempty"`
}

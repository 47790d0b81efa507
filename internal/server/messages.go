package server

import (
	"time"

	"github.com/drivelane/convo/internal/types"
)

// Server-to-client event names.
const (
	EventInitialData         = "initial_data"
	EventUnreadCount         = "unread_count"
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventNewConversation     = "new_conversation"
	EventMessagesRead        = "messages_read"
	EventUserTyping          = "user_typing"
	EventUserStopTyping      = "user_stop_typing"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventUserJoined          = "user_joined_conversation"
	EventUserLeft            = "user_left_conversation"
	EventConversationDeleted = "conversation_deleted"
	EventOnlineStatus        = "online_status_update"
	EventError               = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged union of client-to-server signals.
// Exactly one of the pointer fields is set.
type ClientMessage struct {
	BaseMessage
	Join        *JoinConversation  `json:"join_conversation,omitempty"`
	Leave       *LeaveConversation `json:"leave_conversation,omitempty"`
	Typing      *Typing            `json:"typing,omitempty"`
	StopTyping  *StopTyping        `json:"stop_typing,omitempty"`
	MarkRead    *MarkRead          `json:"mark_read,omitempty"`
	CheckOnline *CheckOnline       `json:"check_online_status,omitempty"`

	UserId string  `json:"-"`
	client *Client `json:"-"`
}

type JoinConversation struct {
	ConversationId string `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationId string `json:"conversation_id"`
}

type Typing struct {
	ConversationId string `json:"conversation_id"`
}

type StopTyping struct {
	ConversationId string `json:"conversation_id"`
}

type MarkRead struct {
	ConversationId string `json:"conversation_id"`
}

type CheckOnline struct {
	UserIds []string `json:"user_ids"`
}

// ServerMessage is a server-to-client event. Event names the payload
// field that is set.
type ServerMessage struct {
	BaseMessage
	Event string `json:"event"`

	InitialData         *InitialData         `json:"initial_data,omitempty"`
	UnreadCount         *UnreadCount         `json:"unread_count,omitempty"`
	NewMessage          *NewMessage          `json:"new_message,omitempty"`
	MessageNotification *MessageNotification `json:"message_notification,omitempty"`
	NewConversation     *NewConversation     `json:"new_conversation,omitempty"`
	MessagesRead        *MessagesRead        `json:"messages_read,omitempty"`
	UserTyping          *UserTyping          `json:"user_typing,omitempty"`
	UserStopTyping      *UserStopTyping      `json:"user_stop_typing,omitempty"`
	Presence            *PresenceChange      `json:"presence,omitempty"`
	RoomPresence        *RoomPresence        `json:"room_presence,omitempty"`
	ConversationDeleted *ConversationDeleted `json:"conversation_deleted,omitempty"`
	OnlineStatus        []OnlineStatus       `json:"online_status_update,omitempty"`
	Error               *ErrorEvent          `json:"error,omitempty"`

	// SkipClient is excluded from room broadcasts, typically the
	// originating connection. SkipUserId excludes every connection
	// of one user, e.g. the typing user's other tabs.
	SkipClient *Client `json:"-"`
	SkipUserId string  `json:"-"`
}

type InitialData struct {
	Conversations []string `json:"conversations"`
	OnlineUsers   []string `json:"online_users"`
}

type UnreadCount struct {
	Count int `json:"count"`
}

type NewMessage struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
}

// MessageNotification targets participants who are online but not
// currently joined to the conversation's room.
type MessageNotification struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
	Listing        types.Listing `json:"listing"`
}

type NewConversation struct {
	Conversation types.Conversation `json:"conversation"`
	Message      types.Message      `json:"message"`
}

type MessagesRead struct {
	ConversationId string `json:"conversation_id"`
	ReadBy         string `json:"read_by"`
	Count          int    `json:"count"`
}

type UserTyping struct {
	UserId         string     `json:"user_id"`
	ConversationId string     `json:"conversation_id"`
	User           types.User `json:"user"`
}

type UserStopTyping struct {
	UserId         string `json:"user_id"`
	ConversationId string `json:"conversation_id"`
}

type PresenceChange struct {
	UserId string `json:"user_id"`
}

type RoomPresence struct {
	UserId         string `json:"user_id"`
	ConversationId string `json:"conversation_id"`
}

type ConversationDeleted struct {
	ConversationId string `json:"conversation_id"`
	DeletedBy      string `json:"deleted_by"`
}

type OnlineStatus struct {
	UserId   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func newEvent(event string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event:       event,
	}
}

// ErrorMessage is returned only to the originating connection, never
// broadcast.
func ErrorMessage(id int, msg string) *ServerMessage {
	ev := newEvent(EventError)
	ev.Id = id
	ev.Error = &ErrorEvent{Message: msg}
	return ev
}

func ErrInvalidMessage(id int) *ServerMessage {
	return ErrorMessage(id, "invalid message format")
}

func ErrInternalError(id int) *ServerMessage {
	return ErrorMessage(id, "internal server error")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

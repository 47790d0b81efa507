package database

import "time"

// ConversationRepository is the sole owner of persisted conversation
// and message state. Both the REST layer and the realtime gateway
// reach the database only through this interface.
type ConversationRepository interface {
	Ping() error

	GetAccountById(userId string) (User, error)
	GetListing(listingId string) (Listing, error)

	ListConversations(userId string, page, limit int) ([]ConversationSummary, error)
	GetConversation(conversationId, userId string) (ConversationSummary, error)
	ConversationIDsForUser(userId string) ([]string, error)
	IsParticipant(conversationId, userId string) (bool, error)

	ListMessages(conversationId, userId string, page, limit int, before time.Time) ([]Message, error)
	StartConversation(userId, listingId, content string) (StartResult, error)
	CreateMessage(conversationId, userId, content string) (Message, error)
	MarkConversationRead(conversationId, userId string) (int, error)
	DeleteConversation(conversationId, userId string) error
	UnreadCount(userId string) (int, error)
}

package database

import "time"

const (
	ListingStatusActive = "active"
	ListingStatusPaused = "paused"
	ListingStatusSold   = "sold"
)

type User struct {
	Id           string
	Name         string
	EmailAddress string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Listing struct {
	Id         string
	SellerId   string
	Title      string
	PriceCents int64
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Conversation struct {
	Id            string
	ListingId     string
	BuyerId       string
	SellerId      string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// ConversationSummary annotates a conversation with the participants,
// the listing, its latest message and the caller's unread count.
type ConversationSummary struct {
	Conversation
	Listing     Listing
	Buyer       User
	Seller      User
	LastMessage *Message
	UnreadCount int
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// StartResult reports the outcome of StartConversation: the
// conversation written to, the appended message, and whether the
// conversation was newly created rather than reused.
type StartResult struct {
	Conversation Conversation
	Message      Message
	Created      bool
}

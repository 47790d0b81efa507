package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Listing is the read-only summary of a marketplace listing attached
// to a conversation. Listing data is owned by the listing service.
type Listing struct {
	Id         string `json:"id"`
	SellerId   string `json:"seller_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}

type Conversation struct {
	Id            string    `json:"id"`
	ListingId     string    `json:"listing_id"`
	BuyerId       string    `json:"buyer_id"`
	SellerId      string    `json:"seller_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// ConversationSummary is a list entry: the conversation annotated with
// its most recent message and the caller's unread count.
type ConversationSummary struct {
	Conversation
	Listing     *Listing `json:"listing,omitempty"`
	Buyer       *User    `json:"buyer,omitempty"`
	Seller      *User    `json:"seller,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

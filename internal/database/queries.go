package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	maxMessageLength = 1000
)

// validateMessageContent mirrors the schema's content CHECK so a
// violation surfaces as a typed error instead of a pq constraint
// failure.
func validateMessageContent(content string) error {
	if content == "" {
		return NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return NewValidationError("content", "exceeds 1000 characters")
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit, limit
}

func (db *PgConversationRepository) GetAccountById(userId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return user, err
}

func (db *PgConversationRepository) GetListing(listingId string) (Listing, error) {
	row := db.conn.QueryRow(
		"SELECT id, seller_id, title, price_cents, status, created_at, updated_at "+
			"FROM listings WHERE id = $1 LIMIT 1",
		listingId,
	)

	var l Listing
	err := row.Scan(
		&l.Id,
		&l.SellerId,
		&l.Title,
		&l.PriceCents,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, ErrNotFound
	}

	return l, err
}

// getConversation fetches the bare conversation row without any
// authorization check. Callers decide whether ErrForbidden applies.
func (db *PgConversationRepository) getConversation(conversationId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT id, listing_id, buyer_id, seller_id, last_message_at, created_at "+
			"FROM conversations WHERE id = $1 LIMIT 1",
		conversationId,
	)

	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.ListingId,
		&c.BuyerId,
		&c.SellerId,
		&c.LastMessageAt,
		&c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}

	return c, err
}

// authorizeParticipant resolves the conversation and enforces that
// userId is one of its two participants. The existence check runs
// before the participation check so the two failures stay distinct.
func (db *PgConversationRepository) authorizeParticipant(conversationId, userId string) (Conversation, error) {
	conv, err := db.getConversation(conversationId)
	if err != nil {
		return Conversation{}, err
	}

	if conv.BuyerId != userId && conv.SellerId != userId {
		return Conversation{}, ErrForbidden
	}

	return conv, nil
}

func (db *PgConversationRepository) IsParticipant(conversationId, userId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM conversations WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2) LIMIT 1",
		conversationId,
		userId,
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

func (db *PgConversationRepository) ConversationIDsForUser(userId string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT id FROM conversations WHERE buyer_id = $1 OR seller_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

const listConversationsQuery = `
SELECT
		c.id, c.listing_id, c.buyer_id, c.seller_id, c.last_message_at, c.created_at,
		l.id, l.seller_id, l.title, l.price_cents, l.status, l.created_at, l.updated_at,
		b.id, b.name, s.id, s.name,
		m.id, m.conversation_id, m.sender_id, m.content, m.is_read, m.created_at,
		(SELECT COUNT(*) FROM messages u
			WHERE u.conversation_id = c.id AND u.sender_id <> $1 AND NOT u.is_read)
FROM conversations c
JOIN listings l ON l.id = c.listing_id
JOIN accounts b ON b.id = c.buyer_id
JOIN accounts s ON s.id = c.seller_id
LEFT JOIN LATERAL (
		SELECT id, conversation_id, sender_id, content, is_read, created_at
		FROM messages
		WHERE conversation_id = c.id
		ORDER BY created_at DESC
		LIMIT 1
) m ON TRUE
WHERE c.buyer_id = $1 OR c.seller_id = $1
ORDER BY c.last_message_at DESC
OFFSET $2 LIMIT $3`

func (db *PgConversationRepository) ListConversations(userId string, page, limit int) ([]ConversationSummary, error) {
	offset, limit := normalizePage(page, limit)

	rows, err := db.conn.Query(listConversationsQuery, userId, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]ConversationSummary, 0, limit)
	for rows.Next() {
		var (
			cs        ConversationSummary
			msgId     sql.NullString
			msgConv   sql.NullString
			msgSender sql.NullString
			msgBody   sql.NullString
			msgRead   sql.NullBool
			msgAt     sql.NullTime
		)

		err := rows.Scan(
			&cs.Id, &cs.ListingId, &cs.BuyerId, &cs.SellerId, &cs.LastMessageAt, &cs.CreatedAt,
			&cs.Listing.Id, &cs.Listing.SellerId, &cs.Listing.Title, &cs.Listing.PriceCents,
			&cs.Listing.Status, &cs.Listing.CreatedAt, &cs.Listing.UpdatedAt,
			&cs.Buyer.Id, &cs.Buyer.Name, &cs.Seller.Id, &cs.Seller.Name,
			&msgId, &msgConv, &msgSender, &msgBody, &msgRead, &msgAt,
			&cs.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if msgId.Valid {
			cs.LastMessage = &Message{
				Id:             msgId.String,
				ConversationId: msgConv.String,
				SenderId:       msgSender.String,
				Content:        msgBody.String,
				IsRead:         msgRead.Bool,
				CreatedAt:      msgAt.Time,
			}
		}

		summaries = append(summaries, cs)
	}

	return summaries, rows.Err()
}

func (db *PgConversationRepository) GetConversation(conversationId, userId string) (ConversationSummary, error) {
	conv, err := db.authorizeParticipant(conversationId, userId)
	if err != nil {
		return ConversationSummary{}, err
	}

	cs := ConversationSummary{Conversation: conv}

	cs.Listing, err = db.GetListing(conv.ListingId)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("conversation listing: %w", err)
	}

	cs.Buyer, err = db.GetAccountById(conv.BuyerId)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("conversation buyer: %w", err)
	}

	cs.Seller, err = db.GetAccountById(conv.SellerId)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("conversation seller: %w", err)
	}

	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read",
		conversationId,
		userId,
	)
	if err := row.Scan(&cs.UnreadCount); err != nil {
		return ConversationSummary{}, err
	}

	return cs, nil
}

// ListMessages returns a chronologically ascending page. The rows are
// fetched newest first so the before-cursor pagination stays cheap,
// then reversed before returning.
func (db *PgConversationRepository) ListMessages(conversationId, userId string, page, limit int, before time.Time) ([]Message, error) {
	if _, err := db.authorizeParticipant(conversationId, userId); err != nil {
		return nil, err
	}

	offset, limit := normalizePage(page, limit)

	cursor := before
	if cursor.IsZero() {
		cursor = time.Now().UTC().Add(time.Hour)
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, content, is_read, created_at FROM messages "+
			"WHERE conversation_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC OFFSET $3 LIMIT $4",
		conversationId,
		cursor,
		offset,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		err := rows.Scan(&msg.Id, &msg.ConversationId, &msg.SenderId, &msg.Content, &msg.IsRead, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first to oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// StartConversation is idempotent per (listing, buyer): a second start
// for the same pair appends to the existing conversation instead of
// creating a duplicate.
func (db *PgConversationRepository) StartConversation(userId, listingId, content string) (StartResult, error) {
	if err := validateMessageContent(content); err != nil {
		return StartResult{}, err
	}

	listing, err := db.GetListing(listingId)
	if err != nil {
		return StartResult{}, err
	}

	if listing.SellerId == userId {
		return StartResult{}, fmt.Errorf("%w: cannot message own listing", ErrConflict)
	}

	if listing.Status != ListingStatusActive {
		return StartResult{}, fmt.Errorf("%w: listing is not active", ErrConflict)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return StartResult{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	var res StartResult
	row := tx.QueryRow(
		"INSERT INTO conversations (id, listing_id, buyer_id, seller_id, last_message_at, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (listing_id, buyer_id) DO NOTHING "+
			"RETURNING id, listing_id, buyer_id, seller_id, last_message_at, created_at",
		uuid.NewString(),
		listingId,
		userId,
		listing.SellerId,
		now,
	)

	err = row.Scan(
		&res.Conversation.Id,
		&res.Conversation.ListingId,
		&res.Conversation.BuyerId,
		&res.Conversation.SellerId,
		&res.Conversation.LastMessageAt,
		&res.Conversation.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// conflict target hit: reuse the existing conversation
		row = tx.QueryRow(
			"SELECT id, listing_id, buyer_id, seller_id, last_message_at, created_at "+
				"FROM conversations WHERE listing_id = $1 AND buyer_id = $2 LIMIT 1",
			listingId,
			userId,
		)
		err = row.Scan(
			&res.Conversation.Id,
			&res.Conversation.ListingId,
			&res.Conversation.BuyerId,
			&res.Conversation.SellerId,
			&res.Conversation.LastMessageAt,
			&res.Conversation.CreatedAt,
		)
		if err != nil {
			return StartResult{}, err
		}
	case err != nil:
		return StartResult{}, err
	default:
		res.Created = true
	}

	res.Message, err = appendMessage(tx, res.Conversation.Id, userId, content, now)
	if err != nil {
		return StartResult{}, err
	}
	res.Conversation.LastMessageAt = now

	if err = tx.Commit(); err != nil {
		return StartResult{}, err
	}

	return res, nil
}

// appendMessage inserts a message and bumps the conversation's
// last_message_at inside the caller's transaction. The bump never
// moves the timestamp backwards, so racing sends are last-write-wins.
func appendMessage(tx *sql.Tx, conversationId, senderId, content string, at time.Time) (Message, error) {
	row := tx.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) "+
			"RETURNING id, conversation_id, sender_id, content, is_read, created_at",
		uuid.NewString(),
		conversationId,
		senderId,
		content,
		at,
	)

	var msg Message
	err := row.Scan(&msg.Id, &msg.ConversationId, &msg.SenderId, &msg.Content, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.Exec(
		"UPDATE conversations SET last_message_at = GREATEST(last_message_at, $1) WHERE id = $2",
		at,
		conversationId,
	)

	return msg, err
}

func (db *PgConversationRepository) CreateMessage(conversationId, userId, content string) (Message, error) {
	if err := validateMessageContent(content); err != nil {
		return Message{}, err
	}

	if _, err := db.authorizeParticipant(conversationId, userId); err != nil {
		return Message{}, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msg, err := appendMessage(tx, conversationId, userId, content, time.Now().UTC())
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// MarkConversationRead flips is_read on every message authored by the
// other participant and reports how many were flipped. Zero is a
// valid result, not an error.
func (db *PgConversationRepository) MarkConversationRead(conversationId, userId string) (int, error) {
	if _, err := db.authorizeParticipant(conversationId, userId); err != nil {
		return 0, err
	}

	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE "+
			"WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read",
		conversationId,
		userId,
	)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	return int(count), err
}

func (db *PgConversationRepository) DeleteConversation(conversationId, userId string) error {
	if _, err := db.authorizeParticipant(conversationId, userId); err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM messages WHERE conversation_id = $1", conversationId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM conversations WHERE id = $1", conversationId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgConversationRepository) UnreadCount(userId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m "+
			"JOIN conversations c ON c.id = m.conversation_id "+
			"WHERE (c.buyer_id = $1 OR c.seller_id = $1) AND m.sender_id <> $1 AND NOT m.is_read",
		userId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

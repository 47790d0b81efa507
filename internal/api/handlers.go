package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drivelane/convo/internal/database"
	"github.com/drivelane/convo/internal/server"
	"github.com/drivelane/convo/internal/types"
)

const maxContentLength = 1000

type StartConversationRequest struct {
	ListingId string `json:"listing_id"`
	Message   string `json:"message"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type StartConversationResponse struct {
	Conversation types.Conversation `json:"conversation"`
	Message      types.Message      `json:"message"`
}

type MarkReadResponse struct {
	Count int `json:"count"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func validateId(field, id string) *ApiError {
	if uuid.Validate(id) != nil {
		return NewValidationError("invalid " + field)
	}
	return nil
}

func validateContent(content string) *ApiError {
	if content == "" {
		return NewValidationError("message content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return NewValidationError("message content exceeds 1000 characters")
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// conversationError maps a store error for a conversation-scoped
// endpoint. The forbidden case is logged before it degrades to 404.
func (s *App) conversationError(err error, conversationId, userId string) *ApiError {
	if errors.Is(err, database.ErrForbidden) {
		s.log.Printf("forbidden: user %s conversation %s", userId, conversationId)
	}
	return domainError(err)
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
	}
}

func toListing(l database.Listing) types.Listing {
	return types.Listing{
		Id:         l.Id,
		SellerId:   l.SellerId,
		Title:      l.Title,
		PriceCents: l.PriceCents,
		Status:     l.Status,
	}
}

func toConversation(c database.Conversation) types.Conversation {
	return types.Conversation{
		Id:            c.Id,
		ListingId:     c.ListingId,
		BuyerId:       c.BuyerId,
		SellerId:      c.SellerId,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

func toSummary(cs database.ConversationSummary) types.ConversationSummary {
	summary := types.ConversationSummary{
		Conversation: toConversation(cs.Conversation),
		UnreadCount:  cs.UnreadCount,
	}

	listing := toListing(cs.Listing)
	summary.Listing = &listing
	buyer := toUser(cs.Buyer)
	buyer.EmailAddress = ""
	summary.Buyer = &buyer
	seller := toUser(cs.Seller)
	seller.EmailAddress = ""
	summary.Seller = &seller

	if cs.LastMessage != nil {
		msg := toMessage(*cs.LastMessage)
		summary.LastMessage = &msg
	}

	return summary
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *App) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbSummaries, err := s.db.ListConversations(userId, page, limit)
	if err != nil {
		s.log.Println("list conversations:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summaries := make([]types.ConversationSummary, 0, len(dbSummaries))
	for _, cs := range dbSummaries {
		summaries = append(summaries, toSummary(cs))
	}

	s.writeJson(w, http.StatusOK, summaries)
}

func (s *App) getConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summary, err := s.db.GetConversation(conversationId, userId)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toSummary(summary))
}

func (s *App) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err = time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			errResp := NewValidationError("invalid before cursor")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.ListMessages(conversationId, userId, page, limit, before)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, toMessage(msg))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *App) startConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := validateId("listing id", req.ListingId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := validateContent(req.Message); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res, err := s.db.StartConversation(userId, req.ListingId, req.Message)
	if err != nil {
		errResp := domainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := toConversation(res.Conversation)
	msg := toMessage(res.Message)

	if res.Created {
		s.cs.NotifyNewConversation(conv, msg)
	} else {
		listing, err := s.db.GetListing(res.Conversation.ListingId)
		if err != nil {
			s.log.Println("load listing for notification:", err)
		}
		s.cs.NotifyNewMessage(conv, msg, toListing(listing))
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	s.writeJson(w, status, StartConversationResponse{
		Conversation: conv,
		Message:      msg,
	})
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.sendLimiter.allow(userId) {
		errResp := NewTooManyRequestsError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := validateContent(req.Content); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summary, err := s.db.GetConversation(conversationId, userId)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.CreateMessage(conversationId, userId, req.Content)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyNewMessage(toConversation(summary.Conversation), toMessage(msg), toListing(summary.Listing))

	s.writeJson(w, http.StatusCreated, toMessage(msg))
}

func (s *App) markRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.MarkConversationRead(conversationId, userId)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyMessagesRead(conversationId, userId, count)

	s.writeJson(w, http.StatusOK, MarkReadResponse{Count: count})
}

// typingSignal is the REST fallback for clients without a realtime
// connection; it feeds the same typing state machine as the socket
// path.
func (s *App) typingSignal(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participant, err := s.db.IsParticipant(conversationId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !participant {
		s.log.Printf("forbidden: user %s conversation %s", userId, conversationId)
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := domainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := toUser(user)
	u.EmailAddress = ""
	s.cs.HandleTypingSignal(conversationId, u, req.IsTyping)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) deleteConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if errResp := validateId("conversation id", conversationId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summary, err := s.db.GetConversation(conversationId, userId)
	if err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteConversation(conversationId, userId); err != nil {
		errResp := s.conversationError(err, conversationId, userId)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyConversationDeleted(toConversation(summary.Conversation), userId)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) unreadCount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.UnreadCount(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// serveWs authenticates the handshake and hands the connection to the
// gateway. Authentication failure refuses the upgrade; no gateway
// state exists until registration.
func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := domainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	u := toUser(user)
	u.EmailAddress = ""
	client := server.NewClient(u, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

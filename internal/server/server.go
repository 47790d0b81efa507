package server

import (
	"context"
	"log"

	"github.com/drivelane/convo/internal/database"
	"github.com/drivelane/convo/internal/stats"
	"github.com/drivelane/convo/internal/types"
)

const (
	metricConnections  = "Connections"
	metricOnlineUsers  = "OnlineUsers"
	metricTypingUsers  = "TypingUsers"
	metricMessagesSent = "MessagesSent"
)

type stopRequest struct {
	done chan struct{}
}

// ChatServer is the realtime gateway: it owns the presence, room and
// typing trackers, relays store-originated events to connected
// clients, and handles client-originated signals. Connection
// lifecycle flows through the Run loop; signal handling runs on the
// connections' own goroutines against the mutex-guarded trackers.
type ChatServer struct {
	log      *log.Logger
	db       database.ConversationRepository
	access   *AccessPolicy
	presence *PresenceTracker
	rooms    *RoomTracker
	typing   *TypingTracker
	stats    stats.StatsProvider

	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.ConversationRepository, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		access:         NewAccessPolicy(db, logger),
		presence:       NewPresenceTracker(),
		rooms:          NewRoomTracker(),
		stats:          su,
		registerChan:   make(chan *Client, 64),
		deRegisterChan: make(chan *Client, 64),
		stop:           make(chan stopRequest),
	}
	cs.typing = NewTypingTracker(typingTimeout, cs.typingExpired)

	for _, name := range []string{metricConnections, metricOnlineUsers, metricTypingUsers, metricMessagesSent} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection %s for user %s", client.sessionId, client.user.Id)
			cs.handleRegister(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %s for user %s", client.sessionId, client.user.Id)
			cs.handleDeregister(client)
		case req := <-cs.stop:
			cs.log.Println("shutting down connections")
			for _, c := range cs.presence.AllClients() {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopRequest{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient hands a freshly upgraded connection to the Run loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

func (cs *ChatServer) handleRegister(c *Client) {
	cameOnline := cs.presence.Connect(c)
	cs.stats.Incr(metricConnections)
	if cameOnline {
		cs.stats.Incr(metricOnlineUsers)
		ev := newEvent(EventUserOnline)
		ev.Presence = &PresenceChange{UserId: c.user.Id}
		ev.SkipUserId = c.user.Id
		cs.broadcastAll(ev)
	}

	conversationIds, err := cs.db.ConversationIDsForUser(c.user.Id)
	if err != nil {
		cs.log.Printf("load conversations for %s: %v", c.user.Id, err)
		c.queueMessage(ErrInternalError(0))
		conversationIds = []string{}
	}

	for _, id := range conversationIds {
		cs.rooms.Join(c, id)
	}

	ev := newEvent(EventInitialData)
	ev.InitialData = &InitialData{
		Conversations: conversationIds,
		OnlineUsers:   cs.presence.OnlineUsers(),
	}
	c.queueMessage(ev)

	if unread, err := cs.db.UnreadCount(c.user.Id); err != nil {
		cs.log.Printf("unread count for %s: %v", c.user.Id, err)
	} else {
		c.queueMessage(unreadCountEvent(unread))
	}
}

// handleDeregister tears a closed connection down in order: typing
// entries, room membership, presence.
func (cs *ChatServer) handleDeregister(c *Client) {
	for _, conversationId := range cs.rooms.LeaveAll(c) {
		cs.stopTypingAndBroadcast(conversationId, c.user.Id)
	}

	wentOffline := cs.presence.Disconnect(c)
	cs.stats.Decr(metricConnections)
	if wentOffline {
		cs.stats.Decr(metricOnlineUsers)
		for _, conversationId := range cs.typing.StopAllForUser(c.user.Id) {
			cs.stats.Decr(metricTypingUsers)
			cs.broadcastStopTyping(conversationId, c.user.Id)
		}

		ev := newEvent(EventUserOffline)
		ev.Presence = &PresenceChange{UserId: c.user.Id}
		ev.SkipUserId = c.user.Id
		cs.broadcastAll(ev)
	}
}

// handleJoin processes an explicit join signal. Access is
// re-validated at signal time; a denied join fails silently.
func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	c := msg.client
	conversationId := msg.Join.ConversationId

	if !cs.access.CanAccess(conversationId, c.user.Id) {
		return
	}

	firstForUser := cs.rooms.Join(c, conversationId)
	if firstForUser {
		ev := newEvent(EventUserJoined)
		ev.RoomPresence = &RoomPresence{UserId: c.user.Id, ConversationId: conversationId}
		ev.SkipUserId = c.user.Id
		cs.broadcastToRoom(conversationId, ev)
	}
}

func (cs *ChatServer) handleLeave(msg *ClientMessage) {
	c := msg.client
	conversationId := msg.Leave.ConversationId

	userLeft := cs.rooms.Leave(c, conversationId)
	if !userLeft {
		return
	}

	cs.stopTypingAndBroadcast(conversationId, c.user.Id)

	ev := newEvent(EventUserLeft)
	ev.RoomPresence = &RoomPresence{UserId: c.user.Id, ConversationId: conversationId}
	ev.SkipUserId = c.user.Id
	cs.broadcastToRoom(conversationId, ev)
}

// HandleTypingSignal transitions the (conversation, user) typing
// state. Both the websocket path and the REST fallback land here, so
// the two entry points share one state machine.
func (cs *ChatServer) HandleTypingSignal(conversationId string, user types.User, isTyping bool) {
	if !cs.access.CanAccess(conversationId, user.Id) {
		return
	}

	if isTyping {
		if cs.typing.Start(conversationId, user.Id) {
			cs.stats.Incr(metricTypingUsers)
		}

		// renewed signals re-arm the timer but still refresh peers
		ev := newEvent(EventUserTyping)
		ev.UserTyping = &UserTyping{
			UserId:         user.Id,
			ConversationId: conversationId,
			User:           user,
		}
		ev.SkipUserId = user.Id
		cs.broadcastToRoom(conversationId, ev)
		return
	}

	cs.stopTypingAndBroadcast(conversationId, user.Id)
}

func (cs *ChatServer) handleMarkRead(msg *ClientMessage) {
	c := msg.client
	conversationId := msg.MarkRead.ConversationId

	if !cs.access.CanAccess(conversationId, c.user.Id) {
		return
	}

	count, err := cs.db.MarkConversationRead(conversationId, c.user.Id)
	if err != nil {
		cs.log.Printf("mark read %s: %v", conversationId, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	cs.NotifyMessagesRead(conversationId, c.user.Id, count)
}

func (cs *ChatServer) handleCheckOnline(msg *ClientMessage) {
	statuses := make([]OnlineStatus, 0, len(msg.CheckOnline.UserIds))
	for _, id := range msg.CheckOnline.UserIds {
		statuses = append(statuses, OnlineStatus{
			UserId:   id,
			IsOnline: cs.presence.IsOnline(id),
		})
	}

	ev := newEvent(EventOnlineStatus)
	ev.Id = msg.Id
	ev.OnlineStatus = statuses
	msg.client.queueMessage(ev)
}

func (cs *ChatServer) typingExpired(conversationId, userId string) {
	cs.stats.Decr(metricTypingUsers)
	cs.broadcastStopTyping(conversationId, userId)
}

func (cs *ChatServer) stopTypingAndBroadcast(conversationId, userId string) {
	if !cs.typing.Stop(conversationId, userId) {
		return
	}

	cs.stats.Decr(metricTypingUsers)
	cs.broadcastStopTyping(conversationId, userId)
}

func (cs *ChatServer) broadcastStopTyping(conversationId, userId string) {
	ev := newEvent(EventUserStopTyping)
	ev.UserStopTyping = &UserStopTyping{UserId: userId, ConversationId: conversationId}
	ev.SkipUserId = userId
	cs.broadcastToRoom(conversationId, ev)
}

// NotifyNewMessage relays a persisted message to the conversation's
// room and pushes a notification to participants who are online but
// not currently in the room.
func (cs *ChatServer) NotifyNewMessage(conv types.Conversation, msg types.Message, listing types.Listing) {
	cs.stats.Incr(metricMessagesSent)

	ev := newEvent(EventNewMessage)
	ev.NewMessage = &NewMessage{ConversationId: conv.Id, Message: msg}
	cs.broadcastToRoom(conv.Id, ev)

	for _, userId := range []string{conv.BuyerId, conv.SellerId} {
		if userId == msg.SenderId {
			continue
		}

		for _, c := range cs.presence.ClientsFor(userId) {
			if cs.rooms.InRoom(c, conv.Id) {
				continue
			}

			notif := newEvent(EventMessageNotification)
			notif.MessageNotification = &MessageNotification{
				ConversationId: conv.Id,
				Message:        msg,
				Listing:        listing,
			}
			c.queueMessage(notif)
		}

		if cs.presence.IsOnline(userId) {
			cs.pushUnreadCount(userId)
		}
	}
}

// NotifyNewConversation subscribes both participants' live
// connections to the new room and announces it to them.
func (cs *ChatServer) NotifyNewConversation(conv types.Conversation, msg types.Message) {
	ev := newEvent(EventNewConversation)
	ev.NewConversation = &NewConversation{Conversation: conv, Message: msg}

	for _, userId := range []string{conv.BuyerId, conv.SellerId} {
		for _, c := range cs.presence.ClientsFor(userId) {
			cs.rooms.Join(c, conv.Id)
			c.queueMessage(ev)
		}

		if userId != msg.SenderId && cs.presence.IsOnline(userId) {
			cs.pushUnreadCount(userId)
		}
	}
}

// NotifyMessagesRead broadcasts a read receipt and refreshes the
// reader's badge count.
func (cs *ChatServer) NotifyMessagesRead(conversationId, readBy string, count int) {
	if count > 0 {
		ev := newEvent(EventMessagesRead)
		ev.MessagesRead = &MessagesRead{
			ConversationId: conversationId,
			ReadBy:         readBy,
			Count:          count,
		}
		cs.broadcastToRoom(conversationId, ev)
	}

	cs.pushUnreadCount(readBy)
}

// NotifyConversationDeleted announces the deletion to both
// participants and tears down the room's ephemeral state.
func (cs *ChatServer) NotifyConversationDeleted(conv types.Conversation, deletedBy string) {
	ev := newEvent(EventConversationDeleted)
	ev.ConversationDeleted = &ConversationDeleted{
		ConversationId: conv.Id,
		DeletedBy:      deletedBy,
	}

	for _, userId := range []string{conv.BuyerId, conv.SellerId} {
		for _, c := range cs.presence.ClientsFor(userId) {
			c.queueMessage(ev)
		}
	}

	for range cs.typing.DropConversation(conv.Id) {
		cs.stats.Decr(metricTypingUsers)
	}
	cs.rooms.DropRoom(conv.Id)
}

func (cs *ChatServer) pushUnreadCount(userId string) {
	count, err := cs.db.UnreadCount(userId)
	if err != nil {
		cs.log.Printf("unread count for %s: %v", userId, err)
		return
	}

	ev := unreadCountEvent(count)
	for _, c := range cs.presence.ClientsFor(userId) {
		c.queueMessage(ev)
	}
}

func unreadCountEvent(count int) *ServerMessage {
	ev := newEvent(EventUnreadCount)
	ev.UnreadCount = &UnreadCount{Count: count}
	return ev
}

func (cs *ChatServer) broadcastToRoom(conversationId string, msg *ServerMessage) {
	for _, c := range cs.rooms.Clients(conversationId) {
		if c == msg.SkipClient || (msg.SkipUserId != "" && c.user.Id == msg.SkipUserId) {
			continue
		}

		c.queueMessage(msg)
	}
}

func (cs *ChatServer) broadcastAll(msg *ServerMessage) {
	for _, c := range cs.presence.AllClients() {
		if c == msg.SkipClient || (msg.SkipUserId != "" && c.user.Id == msg.SkipUserId) {
			continue
		}

		c.queueMessage(msg)
	}
}

// IsUserOnline reports presence for the REST layer.
func (cs *ChatServer) IsUserOnline(userId string) bool {
	return cs.presence.IsOnline(userId)
}

package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/drivelane/convo/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection bound to an authenticated user
// for its entire lifetime.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	sessionId  string
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	sid, err := shortid.Generate()
	if err != nil {
		sid = time.Now().UTC().Format("20060102150405.000000000")
	}

	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		sessionId:  sid,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

// dispatch routes one inbound signal. Malformed signals are answered
// with an error event to this connection only; domain failures never
// tear the connection down.
func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		if msg.Join.ConversationId == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		c.chatServer.handleJoin(msg)
	case msg.Leave != nil:
		if msg.Leave.ConversationId == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		c.chatServer.handleLeave(msg)
	case msg.Typing != nil:
		if msg.Typing.ConversationId == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		c.chatServer.HandleTypingSignal(msg.Typing.ConversationId, c.user, true)
	case msg.StopTyping != nil:
		if msg.StopTyping.ConversationId == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		c.chatServer.HandleTypingSignal(msg.StopTyping.ConversationId, c.user, false)
	case msg.MarkRead != nil:
		if msg.MarkRead.ConversationId == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		c.chatServer.handleMarkRead(msg)
	case msg.CheckOnline != nil:
		c.chatServer.handleCheckOnline(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send queue full for session %s", c.sessionId)
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.deRegisterChan <- c
	c.stopClient()
}

package server

import (
	"sync"
)

// RoomTracker maps conversations to the connections subscribed to
// their broadcast channel, and each connection to the set of
// conversations it has joined. Membership is ephemeral: it is rebuilt
// from the store on every new connection.
type RoomTracker struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	byConn map[*Client]map[string]struct{}
}

func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		rooms:  make(map[string]map[*Client]struct{}),
		byConn: make(map[*Client]map[string]struct{}),
	}
}

// Join subscribes the connection to the conversation's room and
// reports whether the user had no other connection in the room yet.
func (rt *RoomTracker) Join(c *Client, conversationId string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	room, ok := rt.rooms[conversationId]
	if !ok {
		room = make(map[*Client]struct{})
		rt.rooms[conversationId] = room
	}

	userWasPresent := false
	for member := range room {
		if member.user.Id == c.user.Id {
			userWasPresent = true
			break
		}
	}

	room[c] = struct{}{}

	if rt.byConn[c] == nil {
		rt.byConn[c] = make(map[string]struct{})
	}
	rt.byConn[c][conversationId] = struct{}{}

	return !userWasPresent
}

// Leave unsubscribes the connection and reports whether the user has
// no remaining connection in the room.
func (rt *RoomTracker) Leave(c *Client, conversationId string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return rt.leaveLocked(c, conversationId)
}

func (rt *RoomTracker) leaveLocked(c *Client, conversationId string) bool {
	room, ok := rt.rooms[conversationId]
	if !ok {
		return false
	}

	if _, ok := room[c]; !ok {
		return false
	}

	delete(room, c)
	if len(room) == 0 {
		delete(rt.rooms, conversationId)
	}

	if convs := rt.byConn[c]; convs != nil {
		delete(convs, conversationId)
		if len(convs) == 0 {
			delete(rt.byConn, c)
		}
	}

	for member := range room {
		if member.user.Id == c.user.Id {
			return false
		}
	}

	return true
}

// LeaveAll removes the connection from every room it joined and
// returns the conversations in which the user has no remaining
// connection. Used on disconnect.
func (rt *RoomTracker) LeaveAll(c *Client) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	ids := make([]string, 0, len(rt.byConn[c]))
	for conversationId := range rt.byConn[c] {
		ids = append(ids, conversationId)
	}

	userLeft := make([]string, 0, len(ids))
	for _, id := range ids {
		if rt.leaveLocked(c, id) {
			userLeft = append(userLeft, id)
		}
	}

	return userLeft
}

// Clients returns the connections currently subscribed to the room.
// A missing room yields an empty slice: broadcasting to it is a no-op.
func (rt *RoomTracker) Clients(conversationId string) []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	clients := make([]*Client, 0, len(rt.rooms[conversationId]))
	for c := range rt.rooms[conversationId] {
		clients = append(clients, c)
	}

	return clients
}

func (rt *RoomTracker) InRoom(c *Client, conversationId string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	_, ok := rt.byConn[c][conversationId]
	return ok
}

// Rooms returns the conversation ids the connection has joined.
func (rt *RoomTracker) Rooms(c *Client) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	ids := make([]string, 0, len(rt.byConn[c]))
	for id := range rt.byConn[c] {
		ids = append(ids, id)
	}

	return ids
}

// DropRoom removes every membership for the conversation, used when
// the conversation itself is deleted.
func (rt *RoomTracker) DropRoom(conversationId string) []*Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	clients := make([]*Client, 0, len(rt.rooms[conversationId]))
	for c := range rt.rooms[conversationId] {
		clients = append(clients, c)
		if convs := rt.byConn[c]; convs != nil {
			delete(convs, conversationId)
			if len(convs) == 0 {
				delete(rt.byConn, c)
			}
		}
	}
	delete(rt.rooms, conversationId)

	return clients
}

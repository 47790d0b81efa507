package server

import (
	"sync"
)

// PresenceTracker records which users hold active connections. A user
// may hold several simultaneous connections (multi-tab, multi-device);
// they are online while at least one remains, so entries are keyed by
// connection within user.
type PresenceTracker struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		users: make(map[string]map[*Client]struct{}),
	}
}

// Connect records the connection and reports whether the user just
// came online (first connection).
func (p *PresenceTracker) Connect(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[c.user.Id]
	if !ok {
		conns = make(map[*Client]struct{})
		p.users[c.user.Id] = conns
	}
	conns[c] = struct{}{}

	return !ok
}

// Disconnect removes the connection and reports whether the user went
// offline (no connections remain).
func (p *PresenceTracker) Disconnect(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[c.user.Id]
	if !ok {
		return false
	}

	if _, ok := conns[c]; !ok {
		return false
	}

	delete(conns, c)
	if len(conns) == 0 {
		delete(p.users, c.user.Id)
		return true
	}

	return false
}

func (p *PresenceTracker) IsOnline(userId string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.users[userId]) > 0
}

func (p *PresenceTracker) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.users))
	for id := range p.users {
		users = append(users, id)
	}

	return users
}

// ClientsFor returns every active connection for the user.
func (p *PresenceTracker) ClientsFor(userId string) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clients := make([]*Client, 0, len(p.users[userId]))
	for c := range p.users[userId] {
		clients = append(clients, c)
	}

	return clients
}

// AllClients returns every active connection across users.
func (p *PresenceTracker) AllClients() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var clients []*Client
	for _, conns := range p.users {
		for c := range conns {
			clients = append(clients, c)
		}
	}

	return clients
}

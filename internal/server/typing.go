package server

import (
	"sync"
	"time"
)

const typingTimeout = 3 * time.Second

// TypingTracker holds the set of users currently composing a message
// per conversation. Every entry carries a timer: a typing signal with
// no renewal expires after the timeout, and renewals reset the timer
// instead of stacking pending expirations.
type TypingTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[string]map[string]*time.Timer

	// onExpire runs outside the tracker lock when an entry times out.
	onExpire func(conversationId, userId string)
}

func NewTypingTracker(timeout time.Duration, onExpire func(conversationId, userId string)) *TypingTracker {
	if timeout <= 0 {
		timeout = typingTimeout
	}

	return &TypingTracker{
		timeout:  timeout,
		entries:  make(map[string]map[string]*time.Timer),
		onExpire: onExpire,
	}
}

// Start marks the user as typing and reports whether the state
// changed. A renewed signal replaces the pending timer with a fresh
// one: resetting the old timer would keep its identity, and a
// callback the runtime already started would then pass the guard in
// expire and clear the renewed entry.
func (t *TypingTracker) Start(conversationId, userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.entries[conversationId]
	if !ok {
		users = make(map[string]*time.Timer)
		t.entries[conversationId] = users
	}

	prev, renewing := users[userId]
	if renewing {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(t.timeout, func() {
		t.expire(conversationId, userId, timer)
	})
	users[userId] = timer

	return !renewing
}

// Stop clears the typing state and cancels its timer. It reports
// whether the user was actually typing, so redundant stop signals
// produce no duplicate broadcasts.
func (t *TypingTracker) Stop(conversationId, userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopLocked(conversationId, userId)
}

func (t *TypingTracker) stopLocked(conversationId, userId string) bool {
	users, ok := t.entries[conversationId]
	if !ok {
		return false
	}

	timer, ok := users[userId]
	if !ok {
		return false
	}

	timer.Stop()
	delete(users, userId)
	if len(users) == 0 {
		delete(t.entries, conversationId)
	}

	return true
}

// StopAllForUser clears the user's typing state in every conversation
// and returns the conversations that were affected. Used on
// disconnect.
func (t *TypingTracker) StopAllForUser(userId string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for conversationId, users := range t.entries {
		if _, ok := users[userId]; ok {
			t.stopLocked(conversationId, userId)
			ids = append(ids, conversationId)
		}
	}

	return ids
}

// DropConversation clears every typing entry for a conversation,
// cancelling the timers, and returns the users that were typing. Used
// when the conversation is deleted.
func (t *TypingTracker) DropConversation(conversationId string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.entries[conversationId]))
	for userId, timer := range t.entries[conversationId] {
		timer.Stop()
		users = append(users, userId)
	}
	delete(t.entries, conversationId)

	return users
}

func (t *TypingTracker) IsTyping(conversationId, userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[conversationId][userId]
	return ok
}

// expire runs from the timer goroutine. A superseded timer that lost
// the race against Stop or a fresh Start must not fire, so the entry
// is only cleared when it still holds the firing timer.
func (t *TypingTracker) expire(conversationId, userId string, fired *time.Timer) {
	t.mu.Lock()
	current, ok := t.entries[conversationId][userId]
	if !ok || current != fired {
		t.mu.Unlock()
		return
	}
	t.stopLocked(conversationId, userId)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(conversationId, userId)
	}
}

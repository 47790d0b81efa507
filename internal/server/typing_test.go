package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expiryRecorder collects onExpire callbacks for assertions.
type expiryRecorder struct {
	mu      sync.Mutex
	expired []string
}

func (r *expiryRecorder) record(conversationId, userId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, conversationId+"/"+userId)
}

func (r *expiryRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.expired...)
}

func TestTypingTrackerStartStop(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	assert.True(t, tracker.Start("conv-1", "user-1"), "first signal should change state")
	assert.True(t, tracker.IsTyping("conv-1", "user-1"))
	assert.False(t, tracker.IsTyping("conv-1", "user-2"))

	assert.False(t, tracker.Start("conv-1", "user-1"), "renewed signal should not change state")

	assert.True(t, tracker.Stop("conv-1", "user-1"), "stop should clear active state")
	assert.False(t, tracker.IsTyping("conv-1", "user-1"))
	assert.False(t, tracker.Stop("conv-1", "user-1"), "redundant stop should report no change")
	assert.False(t, tracker.Stop("conv-2", "user-1"), "stop in unknown conversation should report no change")
}

func TestTypingTrackerExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(25*time.Millisecond, rec.record)

	tracker.Start("conv-1", "user-1")

	assert.Eventually(t, func() bool {
		return !tracker.IsTyping("conv-1", "user-1")
	}, time.Second, 5*time.Millisecond, "entry should expire without renewal")

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond, "expiry callback should fire once")
	assert.Equal(t, []string{"conv-1/user-1"}, rec.snapshot())
}

func TestTypingTrackerRenewalExtendsTimeout(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(50*time.Millisecond, rec.record)

	tracker.Start("conv-1", "user-1")

	// Renew a few times across the original deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		tracker.Start("conv-1", "user-1")
		assert.True(t, tracker.IsTyping("conv-1", "user-1"), "renewal should keep the entry alive")
	}
	assert.Empty(t, rec.snapshot(), "no expiry should fire while renewed")

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond, "entry should expire after renewals stop")
}

func TestTypingTrackerStopCancelsExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(25*time.Millisecond, rec.record)

	tracker.Start("conv-1", "user-1")
	tracker.Stop("conv-1", "user-1")

	time.Sleep(75 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "stopped entry should not trigger expiry")
}

func TestTypingTrackerRenewalSupersedesPendingTimer(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.record)

	tracker.Start("conv-1", "user-1")
	tracker.mu.Lock()
	superseded := tracker.entries["conv-1"]["user-1"]
	tracker.mu.Unlock()

	tracker.Start("conv-1", "user-1")
	tracker.mu.Lock()
	current := tracker.entries["conv-1"]["user-1"]
	tracker.mu.Unlock()
	assert.NotSame(t, superseded, current, "renewal must install a timer with a fresh identity")

	// A callback from the first arming that the runtime had already
	// started when the renewal landed fires against the old timer.
	tracker.expire("conv-1", "user-1", superseded)

	assert.True(t, tracker.IsTyping("conv-1", "user-1"), "renewed entry must survive the superseded callback")
	assert.Empty(t, rec.snapshot(), "superseded callback must not emit a stop")

	assert.True(t, tracker.Stop("conv-1", "user-1"), "renewed entry must still be stoppable")
}

func TestTypingTrackerStaleTimerDoesNotClearNewEntry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(25*time.Millisecond, rec.record)

	tracker.Start("conv-1", "user-1")

	// Wait for the first timer to expire, then start again. The first
	// timer must not clear the second entry.
	assert.Eventually(t, func() bool {
		return !tracker.IsTyping("conv-1", "user-1")
	}, time.Second, time.Millisecond)

	tracker.Start("conv-1", "user-1")
	time.Sleep(10 * time.Millisecond)
	assert.True(t, tracker.IsTyping("conv-1", "user-1"), "new entry should survive the stale timer")
}

func TestTypingTrackerStopAllForUser(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	tracker.Start("conv-1", "user-1")
	tracker.Start("conv-2", "user-1")
	tracker.Start("conv-2", "user-2")

	ids := tracker.StopAllForUser("user-1")
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, ids)
	assert.False(t, tracker.IsTyping("conv-1", "user-1"))
	assert.False(t, tracker.IsTyping("conv-2", "user-1"))
	assert.True(t, tracker.IsTyping("conv-2", "user-2"), "other users should be unaffected")

	assert.Empty(t, tracker.StopAllForUser("user-1"), "second call should find nothing")
}

func TestTypingTrackerDropConversation(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)

	tracker.Start("conv-1", "user-1")
	tracker.Start("conv-1", "user-2")
	tracker.Start("conv-2", "user-1")

	users := tracker.DropConversation("conv-1")
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, users)
	assert.False(t, tracker.IsTyping("conv-1", "user-1"))
	assert.False(t, tracker.IsTyping("conv-1", "user-2"))
	assert.True(t, tracker.IsTyping("conv-2", "user-1"), "other conversations should be unaffected")

	assert.Empty(t, tracker.DropConversation("conv-1"), "dropped conversation should be empty")
}

func TestTypingTrackerDefaultTimeout(t *testing.T) {
	tracker := NewTypingTracker(0, nil)
	assert.Equal(t, typingTimeout, tracker.timeout, "non-positive timeout should fall back to the default")
}

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.PublishEvent(EventLeadershipGranted, "acquired leadership", map[string]string{"session": "s1"})

	select {
	case evt := <-sub:
		assert.Equal(t, EventLeadershipGranted, evt.Type)
		assert.Equal(t, "acquired leadership", evt.Message)
		assert.Equal(t, "s1", evt.Metadata["session"])
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	require.Equal(t, 2, b.SubscriberCount())

	b.PublishEvent(EventTaskExecutorLost, "disconnected", nil)

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case evt := <-sub:
			assert.Equal(t, EventTaskExecutorLost, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("a subscriber did not receive the published event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	b.PublishEvent(EventAllocationFailed, "boom", nil)

	// sub was closed by Unsubscribe; reading from it must not block.
	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("closed subscriber channel did not return immediately")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe() // never drained
	defer b.Unsubscribe(slow)

	// The per-subscriber buffer is 50; publish well past that without a
	// reader draining it, and confirm Publish itself never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.PublishEvent(EventSlotRequestDeclined, "declined", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestPublishEventSetsTimestamp(t *testing.T) {
	b := NewBroker()
	before := time.Now()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.PublishEvent(EventJobManagerAdmitted, "registered", nil)

	select {
	case evt := <-sub:
		assert.False(t, evt.Timestamp.Before(before))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published event")
	}
}

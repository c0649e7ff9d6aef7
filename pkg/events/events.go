package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventLeadershipGranted     EventType = "leadership.granted"
	EventLeadershipRevoked     EventType = "leadership.revoked"
	EventTaskExecutorAdmitted  EventType = "task_executor.admitted"
	EventTaskExecutorLost      EventType = "task_executor.lost"
	EventJobManagerAdmitted    EventType = "job_manager.admitted"
	EventJobManagerLost        EventType = "job_manager.lost"
	EventSlotRequestDeclined   EventType = "slot_request.declined"
	EventAllocationFailed      EventType = "allocation.failed"
	EventApplicationDeregister EventType = "application.deregistered"
)

// Event represents a cluster event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// PublishEvent is a convenience wrapper around Publish for callers that
// don't need to set an ID or Timestamp themselves (the resource manager's
// registration and leadership paths, which only care about type, message,
// and structured metadata).
func (b *Broker) PublishEvent(t EventType, message string, metadata map[string]string) {
	b.Publish(&Event{Type: t, Message: message, Metadata: metadata})
}

package events

import (
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventQueued         EventType = "event.queued"
	EventDropped        EventType = "event.dropped"
	EventDeferred       EventType = "event.deferred"
	EventPersisted      EventType = "event.persisted"
	EventFailed         EventType = "event.failed"
	EventFlushSucceeded EventType = "flush.succeeded"
	EventFlushFailed    EventType = "flush.failed"
	EventMuted          EventType = "collector.muted"
)

// Event is a notification about the pipeline
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Group     types.EventGroup
	Message   string

	// Result is set on flush.* events
	Result *types.FlushResult
}

// FlushEvent wraps an upload result in the matching notification
func FlushEvent(result types.FlushResult) *Event {
	typ := EventFlushSucceeded
	msg := "flush succeeded"
	if !result.Succeeded() {
		typ = EventFlushFailed
		msg = result.Err.Error()
	}
	return &Event{
		Type:    typ,
		Group:   result.Group,
		Message: msg,
		Result:  &result,
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

type subscription struct {
	filter map[EventType]bool
}

func (s subscription) wants(t EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// Broker fans pipeline notifications out to subscribers
type Broker struct {
	subscribers map[Subscriber]subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Publish after Stop is a no-op.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a subscription. With no types it receives everything.
func (b *Broker) Subscribe(only ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	s := subscription{}
	if len(only) > 0 {
		s.filter = make(map[EventType]bool, len(only))
		for _, t := range only {
			s.filter[t] = true
		}
	}
	b.subscribers[sub] = s
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
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

	for sub, s := range b.subscribers {
		if !s.wants(event.Type) {
			continue
		}
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

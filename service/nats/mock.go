package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*TransactionEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*TransactionEvent, 0),
	}
}

// PublishTransaction records the event and returns any configured error.
func (m *MockPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*TransactionEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsOfType returns events of one type, in publish order.
func (m *MockPublisher) GetPublishedEventsOfType(eventType string) []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransactionEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Type == eventType {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishTransaction.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*TransactionEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// MockBroker is an in-memory Publisher and Subscriber for testing. Published
// events are delivered to every open subscription whose subject matches.
type MockBroker struct {
	mu        sync.Mutex
	next      int
	subs      map[int]mockSubscription
	subscribe error
	closed    bool
}

type mockSubscription struct {
	sub    Subscription
	handle func(*TransactionEvent)
}

// NewMockBroker creates a broker with no subscriptions.
func NewMockBroker() *MockBroker {
	return &MockBroker{subs: make(map[int]mockSubscription)}
}

// Subscribe registers handle until stop is called.
func (b *MockBroker) Subscribe(ctx context.Context, sub Subscription, handle func(*TransactionEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribe != nil {
		return nil, b.subscribe
	}
	id := b.next
	b.next++
	b.subs[id] = mockSubscription{sub: sub, handle: handle}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}, nil
}

// PublishTransaction delivers event to matching subscriptions synchronously.
func (b *MockBroker) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	b.mu.Lock()
	handlers := make([]func(*TransactionEvent), 0, len(b.subs))
	for _, s := range b.subs {
		if SubjectMatches(s.sub.Subject, event.Subject()) {
			handlers = append(handlers, s.handle)
		}
	}
	b.mu.Unlock()

	for _, handle := range handlers {
		handle(event)
	}
	return nil
}

// SetSubscribeError makes Subscribe fail with err.
func (b *MockBroker) SetSubscribeError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribe = err
}

// SubscriptionCount returns the number of open subscriptions.
func (b *MockBroker) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close marks the broker as closed.
func (b *MockBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

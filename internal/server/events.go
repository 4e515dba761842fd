package server

import (
	"context"
	"sync"
	"time"
)

// Event notifies connected clients about journal changes, most importantly
// that the slow image-enrichment step finished for a record.
type Event struct {
	EventType string    `json:"event_type"`
	RecordID  string    `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventDispatcher fans events out to every subscribed client connection.
// Delivery is best-effort: a slow subscriber drops events instead of
// blocking the publisher.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

// NewEventDispatcher returns a dispatcher with a small per-subscriber buffer.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]chan Event),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that is torn down when ctx ends or the
// returned cleanup runs.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	stream := make(chan Event, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	subscriberID := d.nextID
	d.subscribers[subscriberID] = stream
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, subscriberID)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers the event to every current subscriber without blocking.
func (d *EventDispatcher) Publish(eventType, recordID string) {
	if eventType == "" {
		return
	}
	event := Event{
		EventType: eventType,
		RecordID:  recordID,
		Timestamp: d.clock().UTC(),
	}

	d.mu.RLock()
	streams := make([]chan Event, 0, len(d.subscribers))
	for _, stream := range d.subscribers {
		streams = append(streams, stream)
	}
	d.mu.RUnlock()

	for _, stream := range streams {
		select {
		case stream <- event:
		default:
		}
	}
}

func (d *EventDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

package server

import (
	"context"
	"sync"
	"time"

	"github.com/confdesk/backend/internal/conferences"
)

const (
	EventConferenceCreated = "conference-created"
	EventConferenceUpdated = "conference-updated"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "confdesk-backend"
)

// ConferenceEvent announces a change to one conference.
type ConferenceEvent struct {
	Type         string
	ConferenceID conferences.ConferenceID
	Timestamp    time.Time
}

// EventHub fans conference events out to every connected stream. Slow
// subscribers drop events instead of blocking publishers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan ConferenceEvent
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that lives until ctx is done or the returned
// cleanup is called.
func (h *EventHub) Subscribe(ctx context.Context) (<-chan ConferenceEvent, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan ConferenceEvent, h.bufferSize),
	}
	h.mu.Lock()
	h.nextID++
	subscriber.id = h.nextID
	h.subscribers[subscriber.id] = subscriber
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, subscriber.id)
			h.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (h *EventHub) Publish(event ConferenceEvent) {
	if event.Type == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(h.subscribers))
	for _, subscriber := range h.subscribers {
		copies = append(copies, subscriber)
	}
	h.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// Len reports the number of connected streams.
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

package server

import (
	"context"
	"sync"
	"time"

	"github.com/MannyG3/Kettle/internal/feed"
)

const (
	realtimeEventChange    = "post-change"
	realtimeEventHeartbeat = "heartbeat"
)

// RealtimeMessage notifies subscribers of one post mutation inside a kettle.
// The event carries kind and post id only; consumers treat it as a refetch
// trigger, never as a data source.
type RealtimeMessage struct {
	KettleID  string
	Event     feed.Event
	Timestamp time.Time
}

// RealtimeDispatcher fans post-change notifications out to per-kettle
// subscribers. Delivery is best effort: slow subscribers drop messages rather
// than block the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for a kettle's change feed until the context ends.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, kettleID string) (<-chan RealtimeMessage, func()) {
	if kettleID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(kettleID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(kettleID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a message to every subscriber of its kettle.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.KettleID == "" || message.Event.Kind == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.KettleID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(kettleID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[kettleID]; !ok {
		d.subscribers[kettleID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[kettleID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(kettleID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[kettleID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, kettleID)
		}
	}
	d.mu.Unlock()
}

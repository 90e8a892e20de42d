package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventGameSaved         = "game-saved"
	RealtimeEventGameStatusChanged = "game-status-changed"
	RealtimeEventGamesDeleted      = "games-deleted"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "connectfour-backend"
	defaultRealtimeBufferSize      = 16
)

// RealtimeMessage announces a change to one player's saved games.
type RealtimeMessage struct {
	PlayerID  int64
	EventType string
	GameID    int64
	Status    string
	Revision  string
	Timestamp time.Time
}

// RealtimeDispatcher fans saved-game changes out to the player's open event streams.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBufferSize,
	}
}

// Subscribe registers a stream for the player until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, playerID int64) (<-chan RealtimeMessage, func()) {
	if playerID <= 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.register(playerID, subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(playerID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.PlayerID <= 0 || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.PlayerID] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams are open for the player.
func (d *RealtimeDispatcher) SubscriberCount(playerID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[playerID])
}

func (d *RealtimeDispatcher) register(playerID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	if _, ok := d.subscribers[playerID]; !ok {
		d.subscribers[playerID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[playerID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregister(playerID, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[playerID]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, playerID)
	}
}

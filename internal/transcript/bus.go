package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/eum-collab/translation-backend/internal/shared"
)

const subtitleChannel = "room:%s:subtitles"

type busEvent struct {
	Origin string `json:"origin"`
	Record Record `json:"record"`
}

// Bus fans subtitle records out to local subscribers and, when a Redis
// client is configured, across instances through the room's pub/sub
// channel. One Bus lives per joined room; Close tears down the remote
// subscription and all local ones.
type Bus struct {
	roomID string
	origin string
	redis  *redis.Client
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]chan Record
	nextID int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBus(roomID string, redisClient *redis.Client, logger *slog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		roomID: roomID,
		origin: shared.NewID("bus"),
		redis:  redisClient,
		logger: logger.With("component", "subtitle_bus", "room_id", roomID),
		subs:   make(map[int]chan Record),
		ctx:    ctx,
		cancel: cancel,
	}

	if redisClient != nil {
		b.wg.Add(1)
		go b.receiveLoop()
	}

	return b
}

// Subscribe registers a local listener. The returned cancel func must be
// called when the listener goes away; records are dropped for subscribers
// that fall behind rather than blocking the publisher.
func (b *Bus) Subscribe() (<-chan Record, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Record)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Record, 64)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Bus) Publish(ctx context.Context, rec Record) error {
	rec.RoomID = b.roomID
	b.deliver(rec)

	if b.redis == nil {
		return nil
	}

	data, err := json.Marshal(busEvent{Origin: b.origin, Record: rec})
	if err != nil {
		return fmt.Errorf("marshal subtitle: %w", err)
	}

	channel := fmt.Sprintf(subtitleChannel, b.roomID)
	if err := b.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish subtitle: %w", err)
	}
	return nil
}

func (b *Bus) deliver(rec Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- rec:
		default:
			b.logger.Debug("subtitle subscriber full, dropping record",
				"participant_id", rec.ParticipantID)
		}
	}
}

func (b *Bus) receiveLoop() {
	defer b.wg.Done()

	channel := fmt.Sprintf(subtitleChannel, b.roomID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	b.logger.Debug("subscribed to subtitle channel", "channel", channel)

	for {
		msg, err := pubsub.ReceiveMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("receive subtitle", "error", err)
			return
		}

		var ev busEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Error("unmarshal subtitle", "error", err)
			continue
		}
		if ev.Origin == b.origin {
			continue
		}
		b.deliver(ev.Record)
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

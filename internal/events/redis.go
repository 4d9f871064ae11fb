package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis implements Broker over Redis Pub/Sub so every API instance sees
// the events of every other one.
type Redis struct {
	rdb    redis.UniversalClient
	logger *zap.Logger

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedis(rdb redis.UniversalClient, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, logger: logger, subs: map[chan Event]*redis.PubSub{}}
}

func (b *Redis) Subscribe(date string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, channelName(date))
	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.Warn("redis subscribe failed", zap.String("date", date), zap.Error(err))
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; ch is closed once its reader
// goroutine drains.
func (b *Redis) Unsubscribe(date string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(date string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(stamp(date, evt))
	if err != nil {
		b.logger.Error("encode event", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, channelName(date), data).Err(); err != nil {
		b.logger.Warn("redis publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

func channelName(date string) string { return "hiberry:orders:" + date }

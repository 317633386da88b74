// Package redis fans danger episode events out across service replicas
// over Redis Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the Pub/Sub channel danger episodes are published on.
const DefaultChannel = "storm-escape:danger-episodes"

const publishTimeout = 2 * time.Second

// Broker implements watch.EventBroker over Redis Pub/Sub. Every replica that
// subscribes sees episodes published by any replica.
type Broker struct {
	rdb     *goredis.Client
	channel string
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[chan domain.DangerEpisodeEvent]*goredis.PubSub
}

// NewBroker connects to the Redis server at url (redis://host:port/db).
func NewBroker(url string, logger *slog.Logger) (*Broker, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewBrokerWithClient(goredis.NewClient(opt), DefaultChannel, logger), nil
}

func NewBrokerWithClient(rdb *goredis.Client, channel string, logger *slog.Logger) *Broker {
	return &Broker{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
		subs:    make(map[chan domain.DangerEpisodeEvent]*goredis.PubSub),
	}
}

// Ping checks connectivity; used as a readiness probe.
func (b *Broker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Subscribe returns a channel that receives every episode published after
// the subscription is confirmed. The channel is closed by Unsubscribe.
func (b *Broker) Subscribe() chan domain.DangerEpisodeEvent {
	ch := make(chan domain.DangerEpisodeEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel)
	// wait for the confirmation so publishes after Subscribe are not missed
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.Warn("redis subscribe failed", "channel", b.channel, "error", err)
	}

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			evt, err := decodeEpisode(msg.Payload)
			if err != nil {
				b.logger.Warn("dropping malformed danger episode", "error", err)
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

// Unsubscribe closes the underlying subscription; ch is closed once its
// receive loop drains.
func (b *Broker) Unsubscribe(ch chan domain.DangerEpisodeEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := ps.Close(); err != nil {
		b.logger.Debug("redis unsubscribe", "error", err)
	}
}

func (b *Broker) Publish(evt domain.DangerEpisodeEvent) {
	data, err := encodeEpisode(evt)
	if err != nil {
		b.logger.Error("encode danger episode", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("redis publish failed", "channel", b.channel, "episode_id", evt.ID, "error", err)
	}
}

// Close drops every subscription and the client connection pool.
func (b *Broker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[chan domain.DangerEpisodeEvent]*goredis.PubSub)
	b.mu.Unlock()
	for _, ps := range subs {
		_ = ps.Close()
	}
	return b.rdb.Close()
}

func encodeEpisode(evt domain.DangerEpisodeEvent) ([]byte, error) {
	return json.Marshal(evt)
}

func decodeEpisode(payload string) (domain.DangerEpisodeEvent, error) {
	var evt domain.DangerEpisodeEvent
	err := json.Unmarshal([]byte(payload), &evt)
	return evt, err
}

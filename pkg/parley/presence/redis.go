package presence

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mikepea/parley/pkg/parley/apperr"
)

// ChannelPrefix namespaces live channels on the redis bus
const ChannelPrefix = "parley:channel:"

// NewRedis creates a redis client
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisTransport publishes events on redis so that whichever process holds
// the channel's socket can relay them.
type RedisTransport struct {
	rdb *redis.Client
}

// NewRedisTransport creates a transport publishing on rdb
func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

// Deliver publishes event on the channel's redis topic
func (t *RedisTransport) Deliver(ctx context.Context, channelID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperr.Transport(err)
	}
	if err := t.rdb.Publish(ctx, ChannelPrefix+channelID, payload).Err(); err != nil {
		return apperr.Transport(err)
	}
	return nil
}

// Relay forwards events published on redis to this hub's sockets until ctx
// is cancelled. Events for channels held by other processes are ignored.
func (h *Hub) Relay(ctx context.Context, rdb *redis.Client) error {
	pubsub := rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before consuming
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			channelID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
			if !h.holds(channelID) {
				continue
			}
			if err := h.send(channelID, []byte(msg.Payload)); err != nil {
				log.Printf("presence: relay to channel %s: %v", channelID, err)
			}
		}
	}
}

func (h *Hub) holds(channelID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[channelID]
	return ok
}

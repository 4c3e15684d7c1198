// Package presence tracks which users have a live channel open and pushes
// new-message events to them.
package presence

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceKey is the redis hash mapping user id to channel id when the
// registry is shared between processes.
const PresenceKey = "parley:presence"

// redisTimeout bounds each presence round trip to redis
const redisTimeout = 2 * time.Second

// disconnectScript deletes the user's entry only if it still names the
// closing channel.
var disconnectScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// Registry maps an online user to the single channel events are delivered on.
// A user opening a second channel replaces the first.
//
// A shared registry also mirrors every entry into a redis hash so that any
// process can find a channel held by another one. Lookups then read redis,
// falling back to the local map if redis is unreachable.
type Registry struct {
	mu       sync.RWMutex
	channels map[uint]string
	shared   *redis.Client
}

// NewRegistry creates an empty registry local to this process
func NewRegistry() *Registry {
	return &Registry{channels: make(map[uint]string)}
}

// NewSharedRegistry creates a registry backed by the presence hash in rdb
func NewSharedRegistry(rdb *redis.Client) *Registry {
	return &Registry{channels: make(map[uint]string), shared: rdb}
}

// Connect records channelID as the user's live channel and returns the
// channel it replaced, if any.
func (r *Registry) Connect(userID uint, channelID string) string {
	r.mu.Lock()
	previous := r.channels[userID]
	r.channels[userID] = channelID
	r.mu.Unlock()

	if r.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()

		field := strconv.FormatUint(uint64(userID), 10)
		old, err := r.shared.HGet(ctx, PresenceKey, field).Result()
		if err == nil {
			previous = old
		}
		if err := r.shared.HSet(ctx, PresenceKey, field, channelID).Err(); err != nil {
			log.Printf("presence: share connect of user %d: %v", userID, err)
		}
	}
	return previous
}

// Disconnect removes the user's entry if it still points at channelID.
// A stale channel closing after a newer one connected leaves the newer one
// in place.
func (r *Registry) Disconnect(userID uint, channelID string) bool {
	r.mu.Lock()
	removed := false
	if current, ok := r.channels[userID]; ok && current == channelID {
		delete(r.channels, userID)
		removed = true
	}
	r.mu.Unlock()

	if r.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()

		field := strconv.FormatUint(uint64(userID), 10)
		n, err := disconnectScript.Run(ctx, r.shared, []string{PresenceKey}, field, channelID).Int()
		if err != nil {
			log.Printf("presence: share disconnect of user %d: %v", userID, err)
			return removed
		}
		return n > 0
	}
	return removed
}

// Lookup returns the user's live channel
func (r *Registry) Lookup(userID uint) (string, bool) {
	if r.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()

		channelID, err := r.shared.HGet(ctx, PresenceKey, strconv.FormatUint(uint64(userID), 10)).Result()
		if err == nil {
			return channelID, true
		}
		if err == redis.Nil {
			return "", false
		}
		log.Printf("presence: shared lookup of user %d: %v", userID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	channelID, ok := r.channels[userID]
	return channelID, ok
}

// Online returns the ids of all users with a live channel, ascending
func (r *Registry) Online() []uint {
	var ids []uint
	if r.shared != nil {
		ids = r.sharedOnline()
	}
	if ids == nil {
		r.mu.RLock()
		ids = make([]uint, 0, len(r.channels))
		for userID := range r.channels {
			ids = append(ids, userID)
		}
		r.mu.RUnlock()
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// sharedOnline reads the user ids in the presence hash, or nil on error
func (r *Registry) sharedOnline() []uint {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	fields, err := r.shared.HKeys(ctx, PresenceKey).Result()
	if err != nil {
		log.Printf("presence: shared online list: %v", err)
		return nil
	}
	ids := make([]uint, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

package savedgames

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	latestKeyPrefix  = "connectfour:savedgame:latest:"
	defaultCacheTTL  = 24 * time.Hour
	maxCacheAttempts = 3
)

// Cache keeps each player's most recently saved game close at hand. It is never
// authoritative: a miss or a failure falls through to the database.
type Cache interface {
	Latest(ctx context.Context, playerID PlayerID) (*SavedGame, error)
	// StoreLatest replaces the cached entry only when the game orders after it by
	// saved-at, then id, then version. Stale writes are dropped.
	StoreLatest(ctx context.Context, game SavedGame) error
	// MarkDeleted leaves a marker at the given time so older records cannot be cached again.
	MarkDeleted(ctx context.Context, playerID PlayerID, at time.Time) error
}

// cacheEntry is the stored value. A nil Game marks the player's games as deleted.
type cacheEntry struct {
	SavedAt time.Time  `json:"saved_at"`
	ID      int64      `json:"id"`
	Version int64      `json:"version"`
	Game    *SavedGame `json:"game,omitempty"`
}

// olderThan reports whether the entry sorts before other in saved_at DESC, id DESC order,
// with the version breaking ties between states of the same row.
func (e cacheEntry) olderThan(other cacheEntry) bool {
	if !e.SavedAt.Equal(other.SavedAt) {
		return e.SavedAt.Before(other.SavedAt)
	}
	if e.ID != other.ID {
		return e.ID < other.ID
	}
	return e.Version < other.Version
}

// RedisCache stores the latest saved game per player as JSON under a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a cache on the provided client. A non-positive ttl uses one day.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(playerID PlayerID) string {
	return latestKeyPrefix + strconv.FormatInt(playerID.Int64(), 10)
}

// Latest returns the cached record, or nil when nothing is cached or the player's
// games were deleted.
func (c *RedisCache) Latest(ctx context.Context, playerID PlayerID) (*SavedGame, error) {
	entry, found, err := c.read(ctx, c.client, c.key(playerID))
	if err != nil || !found {
		return nil, err
	}
	return entry.Game, nil
}

// StoreLatest records the game as the player's latest save unless a newer one is cached.
func (c *RedisCache) StoreLatest(ctx context.Context, game SavedGame) error {
	stored := game
	return c.store(ctx, PlayerID(game.PlayerID), cacheEntry{
		SavedAt: game.SavedAt,
		ID:      game.ID,
		Version: game.Version,
		Game:    &stored,
	})
}

// MarkDeleted replaces the cached record with an empty marker stamped at the deletion time.
func (c *RedisCache) MarkDeleted(ctx context.Context, playerID PlayerID, at time.Time) error {
	return c.store(ctx, playerID, cacheEntry{SavedAt: at})
}

// store writes the entry under WATCH so a concurrent newer write is never overwritten.
func (c *RedisCache) store(ctx context.Context, playerID PlayerID, entry cacheEntry) error {
	key := c.key(playerID)
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxCacheAttempts; attempt++ {
		err = c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, found, err := c.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if found && entry.olderThan(current) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, c.ttl)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

type valueGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) read(ctx context.Context, client valueGetter, key string) (cacheEntry, bool, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cacheEntry{}, false, nil
	}
	if err != nil {
		return cacheEntry{}, false, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return cacheEntry{}, false, err
	}
	return entry, true, nil
}

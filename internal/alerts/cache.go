package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	versionKey  = "alerts:version"
	feedPrefix  = "alerts:feed"
	bumpChannel = "rentals.bump"
)

// Cache holds built alert feeds in Redis. Entries are keyed by a version
// counter, so a bump orphans every feed built before it and the TTL reclaims
// them.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
}

// NewCache returns a feed cache. A nil *Cache is valid and never hits.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, instance: uuid.NewString()}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current feed version. The counter starts at 1.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
		return 0, fmt.Errorf("alerts cache: init version: %w", err)
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil {
		return 0, fmt.Errorf("alerts cache: read version: %w", err)
	}
	return ver, nil
}

// feedKey names the entry of the feed built for day at threshold under the
// current version. It is empty when the cache is disabled.
func (c *Cache) feedKey(ctx context.Context, threshold int, day time.Time) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d:t%d:%s", feedPrefix, ver, threshold, day.Format("2006-01-02")), nil
}

// load reads the feed stored at key. Missing and undecodable entries are
// misses; the caller rebuilds and overwrites them.
func (c *Cache) load(ctx context.Context, key string) (Feed, bool, error) {
	if !c.enabled() || key == "" {
		return Feed{}, false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Feed{}, false, nil
	}
	if err != nil {
		return Feed{}, false, fmt.Errorf("alerts cache: get %s: %w", key, err)
	}
	var feed Feed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return Feed{}, false, nil
	}
	return feed, true, nil
}

func (c *Cache) store(ctx context.Context, key string, feed Feed) error {
	if !c.enabled() || key == "" {
		return nil
	}
	raw, err := json.Marshal(feed)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump moves to the next version and tells other instances about it.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, fmt.Sprintf("%d:%s", ver, c.instance)).Err()
}

// ListenForInvalidation subscribes to version bump notifications. Bumps
// published by this instance are ignored.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				rawVer, origin, _ := strings.Cut(msg.Payload, ":")
				if origin == c.instance {
					continue
				}
				ver, err := strconv.ParseInt(rawVer, 10, 64)
				if err != nil {
					continue
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/config"
	"github.com/cassiomorais/framelink/internal/flowerr"
)

const (
	channelKeyPrefix = "relay:channel:"
	claimKeyPrefix   = "relay:claim:"
)

// NewRedisClient connects to Redis with retry, for multi-instance relay
// deployments.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // long polls block past the default read timeout
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	maxRetries := cfg.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	retryDelay := cfg.ConnectRetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	for i := 0; i < maxRetries; i++ {
		if err := client.Ping(ctx).Err(); err != nil {
			if i == maxRetries-1 {
				client.Close()
				return nil, fmt.Errorf("connect to redis after %d retries: %w", maxRetries, err)
			}
			time.Sleep(time.Duration(i+1) * retryDelay)
			continue
		}
		break
	}

	return client, nil
}

// redisStore keeps each channel as a capped stream so multiple relay
// instances can serve the same channel.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Store over Redis streams. Channel keys expire ttl
// after the last append.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Append(ctx context.Context, channelID string, frame bus.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	key := channelKeyPrefix + channelID
	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: 256,
		Approx: true,
		Values: map[string]any{"frame": string(payload)},
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append frame to channel %s: %w", channelID, err)
	}
	return nil
}

func (s *redisStore) Read(ctx context.Context, channelID, cursor string) ([]Record, error) {
	if cursor == "" {
		cursor = "0"
	}
	if !validStreamCursor(cursor) {
		return nil, flowerr.NewValidationError("cursor", "is not a position this channel issued")
	}
	block := time.Duration(0) // block until ctx deadline
	if deadline, ok := ctx.Deadline(); ok {
		block = time.Until(deadline)
		if block <= 0 {
			return nil, nil
		}
	}

	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{channelKeyPrefix + channelID, cursor},
		Count:   64,
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read channel %s: %w", channelID, err)
	}

	var records []Record
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["frame"].(string)
			if !ok {
				continue
			}
			var frame bus.Frame
			if err := json.Unmarshal([]byte(raw), &frame); err != nil {
				continue
			}
			records = append(records, Record{Cursor: msg.ID, Frame: frame})
		}
	}
	return records, nil
}

func (s *redisStore) Close() error {
	return nil
}

// validStreamCursor accepts the ids XRead understands: "<ms>" or "<ms>-<seq>".
func validStreamCursor(cursor string) bool {
	for _, r := range cursor {
		if (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return len(cursor) > 0
}

// Lua script so only the claiming owner can release.
var releaseClaimScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// redisClaimer enforces single ownership of a channel id across relay
// instances.
type redisClaimer struct {
	client *redis.Client
}

// NewRedisClaimer builds a Claimer over Redis.
func NewRedisClaimer(client *redis.Client) Claimer {
	return &redisClaimer{client: client}
}

func (c *redisClaimer) Claim(ctx context.Context, channelID, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimKeyPrefix+channelID, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim channel %s: %w", channelID, err)
	}
	if !ok {
		// Reclaiming your own channel refreshes the TTL instead of failing.
		current, err := c.client.Get(ctx, claimKeyPrefix+channelID).Result()
		if err == nil && current == owner {
			c.client.Expire(ctx, claimKeyPrefix+channelID, ttl)
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

func (c *redisClaimer) Release(ctx context.Context, channelID, owner string) error {
	result, err := releaseClaimScript.Run(ctx, c.client, []string{claimKeyPrefix + channelID}, owner).Result()
	if err != nil {
		return fmt.Errorf("release channel %s: %w", channelID, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return flowerr.ErrClaimNotHeld
	}
	return nil
}

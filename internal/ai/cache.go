package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const ingredientsKeyPrefix = "recipesnap:ingredients:"

// IngredientExtractor detects ingredient names in an image.
type IngredientExtractor interface {
	ExtractIngredients(ctx context.Context, image []byte, contentType string) ([]string, error)
}

// Cache is the subset of redis.Cmdable used by CachedExtractor.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedExtractor memoizes ingredient detection by image content hash.
// Cache failures are logged and fall through to the wrapped extractor.
type CachedExtractor struct {
	next  IngredientExtractor
	cache Cache
	ttl   time.Duration
	log   logrus.FieldLogger
}

func NewCachedExtractor(next IngredientExtractor, cache Cache, ttl time.Duration, log logrus.FieldLogger) *CachedExtractor {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedExtractor{next: next, cache: cache, ttl: ttl, log: log}
}

func (c *CachedExtractor) ExtractIngredients(ctx context.Context, image []byte, contentType string) ([]string, error) {
	sum := sha256.Sum256(image)
	key := ingredientsKeyPrefix + hex.EncodeToString(sum[:])

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var names []string
		if jsonErr := json.Unmarshal([]byte(raw), &names); jsonErr == nil {
			return names, nil
		}
		c.log.WithField("key", key).Warn("discarding malformed cached ingredients")
	case errors.Is(err, redis.Nil):
	default:
		c.log.WithError(err).Warn("ingredient cache lookup failed")
	}

	names, err := c.next.ExtractIngredients(ctx, image, contentType)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(names)
	if err == nil {
		err = c.cache.Set(ctx, key, encoded, c.ttl).Err()
	}
	if err != nil {
		c.log.WithError(err).Warn("ingredient cache store failed")
	}
	return names, nil
}

// NewRedisClient connects to the redis URL and verifies it with PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

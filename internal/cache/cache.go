package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamforge/encoding-service/internal/token"
	"github.com/streamforge/encoding-service/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Video Cache Operations

// SetVideo caches the reduced video state
func (c *Cache) SetVideo(ctx context.Context, video *models.Video, ttl time.Duration) error {
	data, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("failed to marshal video: %w", err)
	}

	key := fmt.Sprintf("video:%s", video.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetVideo retrieves the reduced video state from cache
func (c *Cache) GetVideo(ctx context.Context, videoID string) (*models.Video, error) {
	key := fmt.Sprintf("video:%s", videoID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get video from cache: %w", err)
	}

	var video models.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video: %w", err)
	}

	return &video, nil
}

// DeleteVideo removes a video from cache. Called by the reducer after every
// applied event so readers never see pre-reduction state.
func (c *Cache) DeleteVideo(ctx context.Context, videoID string) error {
	key := fmt.Sprintf("video:%s", videoID)
	return c.client.Del(ctx, key).Err()
}

// Token Cache Operations

// tokenExpirySkew is subtracted from the token lifetime so a cached token is
// never handed out within a minute of its expiry.
const tokenExpirySkew = time.Minute

// TokenSource wraps an issuer with an expiry-aware Redis cache. Behavior is
// observably identical to the uncached issuer apart from call volume.
type TokenSource struct {
	cache  *Cache
	source token.TokenSource
	key    string
}

// NewTokenSource creates a caching token source for the given scope.
func NewTokenSource(cache *Cache, source token.TokenSource, scope string) *TokenSource {
	return &TokenSource{
		cache:  cache,
		source: source,
		key:    fmt.Sprintf("broker_token:%s", scope),
	}
}

// Token returns a cached bearer token, minting a fresh one on miss.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	cached, err := ts.cache.client.Get(ctx, ts.key).Result()
	if err == nil && cached != "" {
		return cached, nil
	}

	minted, err := ts.source.Token(ctx)
	if err != nil {
		return "", err
	}

	ttl := token.AssertionLifetime - tokenExpirySkew
	if err := ts.cache.client.Set(ctx, ts.key, minted, ttl).Err(); err != nil {
		// A cache write failure must not fail the publish path.
		return minted, nil
	}

	return minted, nil
}

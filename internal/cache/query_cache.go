package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

const queryKeyPrefix = keyNamespace + ":query"

// Query kinds cached per ledger filter.
const (
	KindFilterOptions = "filters"
	KindOverview      = "overview"
)

// QueryCache stores JSON-encoded read results keyed by kind and ledger filter.
// Everything is dropped when new ledger rows land.
type QueryCache interface {
	Get(ctx context.Context, kind string, filter domain.LedgerFilter, dest interface{}) (bool, error)
	Set(ctx context.Context, kind string, filter domain.LedgerFilter, value interface{}) error
	InvalidateAll(ctx context.Context) error
}

type redisQueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopQueryCache struct{}

// NewQueryCache returns a redis-backed cache, or a no-op one when client is nil.
func NewQueryCache(client *redis.Client, ttl time.Duration) QueryCache {
	if client == nil {
		return &noopQueryCache{}
	}
	return &redisQueryCache{client: client, ttl: ttlOrDefault(ttl)}
}

func NewNoopQueryCache() QueryCache {
	return &noopQueryCache{}
}

func (c *redisQueryCache) Get(ctx context.Context, kind string, filter domain.LedgerFilter, dest interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, buildQueryKey(kind, filter)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode %s cache: %w", kind, err)
	}
	return true, nil
}

func (c *redisQueryCache) Set(ctx context.Context, kind string, filter domain.LedgerFilter, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", kind, err)
	}

	if err := c.client.Set(ctx, buildQueryKey(kind, filter), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisQueryCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, queryKeyPrefix, scanBatchSize)
}

func (n *noopQueryCache) Get(ctx context.Context, kind string, filter domain.LedgerFilter, dest interface{}) (bool, error) {
	return false, nil
}

func (n *noopQueryCache) Set(ctx context.Context, kind string, filter domain.LedgerFilter, value interface{}) error {
	return nil
}

func (n *noopQueryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildQueryKey(kind string, filter domain.LedgerFilter) string {
	return fmt.Sprintf("%s:%s:%s", queryKeyPrefix, kind, filterHash(filter))
}

func filterHash(filter domain.LedgerFilter) string {
	var from, to string
	if filter.From != nil {
		from = filter.From.Format(domain.DateLayout)
	}
	if filter.To != nil {
		to = filter.To.Format(domain.DateLayout)
	}
	raw := fmt.Sprintf("org=%s|loc=%s|item=%s|from=%s|to=%s",
		filter.Organization, filter.Location, filter.Item, from, to)

	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

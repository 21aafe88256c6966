package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greengold/nexus/internal/platform/events"
)

const cacheVersionKey = "reports:version"

// Cache keeps report payloads in Redis under a version number; bumping the
// version retires every cached report at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"reports"}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. Redis
// errors degrade to calling the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("reports: cache loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			slog.Warn("report cache read", slog.String("key", key), slog.Any("error", err))
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			slog.Warn("report cache write", slog.String("key", key), slog.Any("error", err))
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached report.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// reportCollections are the change-feed collections that feed reports.
var reportCollections = []string{
	events.Transactions, events.Customers, events.PayrollHistory, events.Settings,
	events.Bookings, events.Reviews,
}

func affectsReports(changes []events.Change) bool {
	for _, ch := range changes {
		for _, c := range reportCollections {
			if ch.Collection == c {
				return true
			}
		}
	}
	return false
}

// Invalidating wraps next so that the cache version is bumped before changes
// are forwarded. Writers publish after commit, so a read issued once the
// write returns never sees the earlier figures.
func (c *Cache) Invalidating(next events.Publisher, logger *slog.Logger) events.Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &invalidatingPublisher{cache: c, next: next, logger: logger}
}

type invalidatingPublisher struct {
	cache  *Cache
	next   events.Publisher
	logger *slog.Logger
}

func (p *invalidatingPublisher) Publish(ctx context.Context, changes ...events.Change) {
	if affectsReports(changes) {
		if err := p.cache.Bump(ctx); err != nil {
			p.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	if p.next != nil {
		p.next.Publish(ctx, changes...)
	}
}

// Subscriber is the change feed the cache follows.
type Subscriber interface {
	Subscribe(ctx context.Context, collections ...string) (<-chan events.Change, error)
}

// ListenForChanges bumps the version on changes published by other
// instances, until ctx ends.
func (c *Cache) ListenForChanges(ctx context.Context, sub Subscriber, logger *slog.Logger) error {
	if c == nil || c.client == nil || sub == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := sub.Subscribe(ctx, reportCollections...)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-ch:
				if !ok {
					return
				}
				if err := c.Bump(ctx); err != nil {
					logger.Warn("bump report cache", slog.String("collection", change.Collection), slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

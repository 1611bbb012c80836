package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultPageSize is how many records a snapshot holds when the caller does
// not say otherwise.
const DefaultPageSize = 100

// Lister is the provider-facing surface the service consumes.
type Lister interface {
	ListUsers(ctx context.Context, top int) ([]Record, error)
	Configured() bool
}

// Service memoizes directory snapshots per distinct limit. Entries expire
// after the configured TTL; concurrent loads for the same limit are
// collapsed into one provider call.
type Service struct {
	client Lister
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the snapshot service. The redis client may be nil;
// the service then fetches straight through.
func NewService(client Lister, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{client: client, cache: cache, ttl: ttl, logger: logger}
}

// Configured reports whether the underlying provider has credentials.
func (s *Service) Configured() bool {
	return s != nil && s.client != nil && s.client.Configured()
}

// Snapshot returns the cached user listing for the limit, fetching from the
// provider on a cold or expired entry. Provider failures surface as
// ErrUnavailable; the cache is best effort and its own failures only log.
func (s *Service) Snapshot(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.client == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	key := fmt.Sprintf("directory:users:%d", limit)

	if records, ok := s.fromCache(ctx, key); ok {
		return records, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under singleflight; a concurrent winner may have
		// populated the key already.
		if records, ok := s.fromCache(ctx, key); ok {
			return records, nil
		}
		records, err := s.client.ListUsers(ctx, limit)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Record), nil
}

// Refresh forces a provider fetch for the limit, overwriting the cached
// entry. Used by the warmup job.
func (s *Service) Refresh(ctx context.Context, limit int) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	records, err := s.client.ListUsers(ctx, limit)
	if err != nil {
		return err
	}
	s.store(ctx, fmt.Sprintf("directory:users:%d", limit), records)
	return nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && s.logger != nil {
			s.logger.Warn("directory cache read", slog.Any("error", err))
		}
		return nil, false
	}
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		if s.logger != nil {
			s.logger.Warn("directory cache decode", slog.Any("error", err))
		}
		_ = s.cache.Del(ctx, key).Err()
		return nil, false
	}
	return records, true
}

func (s *Service) store(ctx context.Context, key string, records []Record) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("directory cache write", slog.Any("error", err))
	}
}

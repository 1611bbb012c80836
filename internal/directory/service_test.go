package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/beacon-portal/beacon-portal/testing"
)

type stubLister struct {
	records    []Record
	err        error
	calls      int
	configured bool
}

func (s *stubLister) ListUsers(ctx context.Context, top int) ([]Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if top < len(s.records) {
		return s.records[:top], nil
	}
	return s.records, nil
}

func (s *stubLister) Configured() bool {
	return s.configured
}

func newCache(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	cache, _ := newCache(t)
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1", DisplayName: "Pat"}},
	}
	svc := NewService(lister, cache, 5*time.Minute, discardLogger())

	first, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.calls, "second snapshot within TTL must be served from cache")
}

func TestSnapshotRefetchesAfterExpiry(t *testing.T) {
	cache, mr := newCache(t)
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1", DisplayName: "Pat"}},
	}
	svc := NewService(lister, cache, time.Minute, discardLogger())

	_, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls, "expired entry must trigger a provider fetch")
}

func TestSnapshotCachesPerLimit(t *testing.T) {
	cache, _ := newCache(t)
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1"}, {ID: "2"}, {ID: "3"}},
	}
	svc := NewService(lister, cache, 5*time.Minute, discardLogger())

	small, err := svc.Snapshot(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, small, 2)

	large, err := svc.Snapshot(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, large, 3)

	assert.Equal(t, 2, lister.calls, "distinct limits are separate cache entries")
}

func TestSnapshotProviderFailure(t *testing.T) {
	cache, _ := newCache(t)
	lister := &stubLister{
		configured: true,
		err:        fmt.Errorf("%w: graph returned 503", ErrUnavailable),
	}
	svc := NewService(lister, cache, 5*time.Minute, discardLogger())

	_, err := svc.Snapshot(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSnapshotWithoutProvider(t *testing.T) {
	svc := NewService(nil, nil, 5*time.Minute, discardLogger())
	_, err := svc.Snapshot(context.Background(), 10)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSnapshotCorruptCacheEntry(t *testing.T) {
	cache, mr := newCache(t)
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1", DisplayName: "Pat"}},
	}
	svc := NewService(lister, cache, 5*time.Minute, discardLogger())

	require.NoError(t, mr.Set("directory:users:10", "{corrupt"))

	records, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, lister.calls, "corrupt entry must fall through to the provider")
}

func TestSnapshotWithoutCacheFetchesThrough(t *testing.T) {
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1"}},
	}
	svc := NewService(lister, nil, 5*time.Minute, discardLogger())

	_, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	_, err = svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls, "no cache means every snapshot fetches")
}

func TestRefreshOverwritesCache(t *testing.T) {
	cache, _ := newCache(t)
	lister := &stubLister{
		configured: true,
		records:    []Record{{ID: "1", DisplayName: "Before"}},
	}
	svc := NewService(lister, cache, 5*time.Minute, discardLogger())

	_, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)

	lister.records = []Record{{ID: "1", DisplayName: "After"}}
	require.NoError(t, svc.Refresh(context.Background(), 10))

	records, err := svc.Snapshot(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "After", records[0].DisplayName)
	assert.Equal(t, 2, lister.calls, "refresh fetches, the following snapshot reads cache")
}

func TestPlaceholderDataset(t *testing.T) {
	records := Placeholder()
	require.Len(t, records, 7)
	assert.Equal(t, "Alice Johnson", records[0].DisplayName)
	for _, r := range records {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Principal)
	}
}

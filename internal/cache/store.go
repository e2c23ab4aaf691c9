package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/ledgerline/internal/aging"
)

// TTL policy for report-date driven entries. Future-dated and near-term
// data still mutates upstream; older snapshots are effectively frozen.
const (
	TTLFuture     = time.Hour
	TTLRecent     = 24 * time.Hour
	TTLHistorical = 7 * 24 * time.Hour

	recentWindowDays = 7
)

// Store is a key/value cache with per-entry TTL on Redis. Entries are
// written whole and replaced whole; an entry past its TTL is a miss.
type Store struct {
	client *redis.Client
}

// NewStore wraps a Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the payload for key, reporting a miss for absent or
// expired entries.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, nil
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return payload, true, nil
}

// Put stores payload under key for ttl. Overwriting resets the expiry;
// the last write's TTL wins.
func (s *Store) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Invalidate drops the entry for key, if any.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes a cached JSON payload into dest, reporting a miss when
// the key is absent.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes value as JSON and stores it under key for ttl.
func (s *Store) PutJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return s.Put(ctx, key, payload, ttl)
}

// TTLFor picks the entry lifetime for data belonging to reportDate:
// future report dates an hour, report dates within the last week a day,
// anything older a week.
func TTLFor(reportDate aging.Date, now time.Time) time.Duration {
	today := aging.DateOf(now)
	switch {
	case reportDate.After(today):
		return TTLFuture
	case !reportDate.Before(today.AddDays(-recentWindowDays)):
		return TTLRecent
	default:
		return TTLHistorical
	}
}

// ItemsKey namespaces a raw-records entry by tenant, record kind and
// report date so differing report dates never collide.
func ItemsKey(tenantID, kind string, reportDate aging.Date) string {
	return strings.Join([]string{"ar", "items", tenantID, kind, reportDate.String()}, ":")
}

// ReportKey namespaces a fully assembled per-tenant report, including
// the aging configuration.
func ReportKey(tenantID string, reportDate aging.Date, periods int, periodType aging.PeriodType) string {
	return strings.Join([]string{
		"ar", "report", tenantID, reportDate.String(),
		fmt.Sprintf("%d", periods), string(periodType),
	}, ":")
}

// Package location keeps each device's latest fix and serves it to the
// recording sampler.
package location

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend-tripmark/internal/shared/geo"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "location:"

var ErrUnavailable = errors.New("location unavailable")

// Fix is one reported position.
type Fix struct {
	geo.Point
	AccuracyM  float64   `json:"accuracy_m,omitempty" validate:"gte=0"`
	RecordedAt time.Time `json:"recorded_at"`
}

type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisProvider{client: client, ttl: ttl, now: time.Now}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Report stores userID's latest fix. It expires after the provider TTL so a
// silent device stops feeding recordings.
func (p *RedisProvider) Report(ctx context.Context, userID string, fix Fix) error {
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = p.now()
	}
	payload, err := json.Marshal(fix)
	if err != nil {
		return errors.Wrap(err, "encode fix")
	}
	return errors.Wrap(p.client.Set(ctx, key(userID), payload, p.ttl).Err(), "store fix")
}

func (p *RedisProvider) CurrentLocation(ctx context.Context, userID string) (geo.Point, error) {
	data, err := p.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return geo.Point{}, ErrUnavailable
	}
	if err != nil {
		return geo.Point{}, errors.Wrap(err, "read fix")
	}
	var fix Fix
	if err := json.Unmarshal(data, &fix); err != nil || !fix.Valid() {
		return geo.Point{}, errors.Wrap(ErrUnavailable, "unreadable fix")
	}
	return fix.Point, nil
}

// StaticProvider serves fixes from memory. It backs local runs without Redis.
type StaticProvider struct {
	mu    sync.RWMutex
	fixes map[string]geo.Point
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{fixes: map[string]geo.Point{}}
}

func (p *StaticProvider) Report(_ context.Context, userID string, fix Fix) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixes[userID] = fix.Point
	return nil
}

func (p *StaticProvider) CurrentLocation(_ context.Context, userID string) (geo.Point, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pt, ok := p.fixes[userID]
	if !ok {
		return geo.Point{}, ErrUnavailable
	}
	return pt, nil
}

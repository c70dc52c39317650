package viewport

import (
	"context"
	"sync/atomic"
	"time"

	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/metrics"
	"backend-tripmark/internal/shared/geo"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const snapshotKey = "itineraries"

// Lister is the part of the itinerary service the viewport reads from.
type Lister interface {
	List(ctx context.Context, filter itinerary.ListFilter) ([]itinerary.Itinerary, error)
}

// Service filters a cached snapshot of every itinerary. The snapshot expires
// after the TTL or when Invalidate is called; concurrent misses share one load.
type Service struct {
	source  Lister
	cache   *cache.Cache
	loads   singleflight.Group
	gen     atomic.Uint64
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(source Lister, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		source:  source,
		cache:   cache.New(ttl, 2*ttl),
		metrics: m,
		logger:  logging.OrNop(logger),
	}
}

// Visible returns the snapshot's itineraries that touch b, in store order.
// Counter increments do not invalidate the snapshot, so counters in the
// result are as of the last load.
func (s *Service) Visible(ctx context.Context, b geo.Bound, limit int) ([]itinerary.Itinerary, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	items, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ViewportQuery()
	return Filter(items, b, limit), nil
}

// Invalidate drops the snapshot so the next query reloads it. A load that
// was already running when Invalidate is called is not cached.
func (s *Service) Invalidate() {
	s.gen.Add(1)
	s.loads.Forget(snapshotKey)
	s.cache.Delete(snapshotKey)
}

func (s *Service) snapshot(ctx context.Context) ([]itinerary.Itinerary, error) {
	if cached, found := s.cache.Get(snapshotKey); found {
		return cached.([]itinerary.Itinerary), nil
	}

	v, err, _ := s.loads.Do(snapshotKey, func() (interface{}, error) {
		gen := s.gen.Load()
		items, err := s.source.List(ctx, itinerary.ListFilter{})
		s.metrics.SnapshotLoad(err)
		if err != nil {
			return nil, err
		}
		if s.gen.Load() == gen {
			s.cache.Set(snapshotKey, items, cache.DefaultExpiration)
		}
		s.logger.Debug("itinerary snapshot loaded", zap.Int("count", len(items)))
		return items, nil
	})
	if err != nil {
		s.logger.Warn("itinerary snapshot load failed", zap.Error(err))
		return nil, err
	}
	return v.([]itinerary.Itinerary), nil
}

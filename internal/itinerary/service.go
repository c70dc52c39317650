package itinerary

import (
	"context"
	"encoding/json"

	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/metrics"
	"backend-tripmark/internal/score"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var validate = validator.New()

// Invalidator is told when the set of itineraries changes shape.
type Invalidator interface {
	Invalidate()
}

// Publisher fans out payloads on a topic.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

func ScoreTopic(id string) string {
	return "itinerary:" + id
}

type Service struct {
	repo      Repository
	cache     Invalidator
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.cache = inv }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new itinerary. Counters always start at zero.
func (s *Service) Create(ctx context.Context, it Itinerary) (Itinerary, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.Counters = score.Counters{}
	if err := validateItinerary(it); err != nil {
		return Itinerary{}, err
	}
	it.normalize()

	saved, err := s.repo.Set(ctx, it)
	if err != nil {
		return Itinerary{}, err
	}
	s.invalidate()
	s.logger.Info("itinerary created", zap.String("itinerary_id", saved.ID), zap.String("owner_id", saved.OwnerID),
		zap.Int("route_points", len(saved.Route)))
	return saved, nil
}

func (s *Service) Get(ctx context.Context, id string) (Itinerary, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Itinerary, error) {
	return s.repo.List(ctx, filter)
}

// Replace overwrites every field of an itinerary the caller owns, counters
// included. It is last-writer-wins with no merge; it is not a way to adjust
// counters and concurrent increments that land before it are overwritten.
func (s *Service) Replace(ctx context.Context, userID, id string, it Itinerary) (Itinerary, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Itinerary{}, err
	}
	if existing.OwnerID != userID {
		return Itinerary{}, ErrForbidden
	}
	it.ID = id
	it.OwnerID = existing.OwnerID
	it.CreatedAt = existing.CreatedAt
	if err := validateItinerary(it); err != nil {
		return Itinerary{}, err
	}
	it.normalize()

	saved, err := s.repo.Set(ctx, it)
	if err != nil {
		return Itinerary{}, err
	}
	s.invalidate()
	s.logger.Info("itinerary replaced", zap.String("itinerary_id", id), zap.String("owner_id", userID))
	return saved, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.OwnerID != userID {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("itinerary deleted", zap.String("itinerary_id", id), zap.String("owner_id", userID))
	return nil
}

// IncrementCounter adds one to a counter inside a single store transaction.
// A failed transaction is reported as is; it is not retried here, so the
// increment is applied at most once.
func (s *Service) IncrementCounter(ctx context.Context, id string, counter score.Counter) (Itinerary, error) {
	if _, err := score.ParseCounter(string(counter)); err != nil {
		return Itinerary{}, err
	}

	it, err := s.repo.RunTransaction(ctx, id, func(doc *Itinerary) error {
		return doc.Counters.Increment(counter)
	})
	s.metrics.IncCounter(string(counter), err)
	if err != nil {
		s.logger.Warn("counter increment failed", zap.String("itinerary_id", id),
			zap.String("counter", string(counter)), zap.Error(err))
		return Itinerary{}, err
	}

	if s.publisher != nil {
		payload, err := json.Marshal(newScoreUpdate(it))
		if err == nil {
			s.publisher.Broadcast(ScoreTopic(id), payload)
		}
	}
	return it, nil
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

func validateItinerary(it Itinerary) error {
	if err := validate.Struct(it); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

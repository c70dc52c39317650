package recording

import (
	"context"
	"sync"
	"time"

	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/shared/geo"

	"go.uber.org/zap"
)

// Sample outcomes, also used as metric labels.
const (
	OutcomeAppended    = "appended"
	OutcomeSkipped     = "skipped"
	OutcomeUnavailable = "unavailable"
	OutcomeDropped     = "dropped"
)

// LocationProvider returns a user's current fix. It may block; the sampler
// never waits for it.
type LocationProvider interface {
	CurrentLocation(ctx context.Context, userID string) (geo.Point, error)
}

// Sampler turns ticks into location fetches for one session.
type Sampler struct {
	session  *Session
	provider LocationProvider
	userID   string
	logger   *zap.Logger

	// OnSample runs after a point has been appended, with the new point count.
	OnSample func(p geo.Point, count int)
	// OnOutcome runs once per tick or fetch result.
	OnOutcome func(outcome string)

	mu     sync.Mutex
	closed bool
	seq    uint64
}

func NewSampler(session *Session, provider LocationProvider, userID string, logger *zap.Logger) *Sampler {
	return &Sampler{session: session, provider: provider, userID: userID, logger: logging.OrNop(logger)}
}

// Run samples once right away, then once per tick, until ctx is done, the
// tick channel closes, or the session stops. Each sample taken while
// recording starts one fetch in its own goroutine. Once Run returns no fetch
// result is appended, even if the fetch is still in flight.
func (s *Sampler) Run(ctx context.Context, ticks <-chan time.Time) {
	defer s.close()
	if !s.sample(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			if !s.sample(ctx) {
				return
			}
		}
	}
}

// sample reports false once the session has stopped or been reset.
func (s *Sampler) sample(ctx context.Context) bool {
	switch s.session.State() {
	case StateStopped, StateIdle:
		return false
	}
	epoch, recording := s.session.ticket()
	if !recording {
		s.outcome(OutcomeSkipped)
		return true
	}
	s.seq++
	go s.fetch(ctx, epoch, s.seq)
	return true
}

func (s *Sampler) fetch(ctx context.Context, epoch, seq uint64) {
	p, err := s.provider.CurrentLocation(ctx, s.userID)
	if err != nil {
		s.logger.Debug("location unavailable, tick skipped", zap.String("user_id", s.userID), zap.Error(err))
		s.outcome(OutcomeUnavailable)
		return
	}

	s.mu.Lock()
	if s.closed || !s.session.appendSample(epoch, seq, p) {
		s.mu.Unlock()
		s.outcome(OutcomeDropped)
		return
	}
	s.mu.Unlock()

	s.outcome(OutcomeAppended)
	if s.OnSample != nil {
		s.OnSample(p, s.session.pointCount())
	}
}

func (s *Sampler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Sampler) outcome(o string) {
	if s.OnOutcome != nil {
		s.OnOutcome(o)
	}
}

package recording

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/logging"
	"backend-tripmark/internal/metrics"
	"backend-tripmark/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultTitle = "Recorded trip"

var (
	ErrNotFound  = errors.New("recording not found")
	ErrForbidden = errors.New("recording belongs to another user")
	ErrNoUser    = errors.New("user id required")
)

// Creator persists a finished recording.
type Creator interface {
	Create(ctx context.Context, it itinerary.Itinerary) (itinerary.Itinerary, error)
}

// TickerFunc returns a tick channel and a function that stops it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

const topicPrefix = "recording:"

func Topic(sessionID string) string {
	return topicPrefix + sessionID
}

// StopRequest carries the fields a user adds when finishing a recording.
type StopRequest struct {
	Title string          `json:"title" validate:"max=200"`
	Pins  []itinerary.Pin `json:"pins" validate:"dive"`
}

type live struct {
	id      string
	ownerID string
	title   string
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}

	// finishMu serialises Stop and Reset so a recording is persisted once.
	finishMu sync.Mutex
	finished bool
}

// Manager owns the live recordings, each bound to the user who started it.
type Manager struct {
	creator   Creator
	provider  LocationProvider
	publisher itinerary.Publisher
	interval  time.Duration
	ticker    TickerFunc
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*live
}

type ManagerOption func(*Manager)

func WithPublisher(p itinerary.Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func WithTicker(t TickerFunc) ManagerOption {
	return func(m *Manager) { m.ticker = t }
}

func NewManager(creator Creator, provider LocationProvider, interval time.Duration, opts ...ManagerOption) *Manager {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &Manager{
		creator:  creator,
		provider: provider,
		interval: interval,
		ticker:   realTicker,
		now:      time.Now,
		logger:   zap.NewNop(),
		sessions: map[string]*live{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a recording for userID and begins sampling immediately.
func (m *Manager) Start(userID, title string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrNoUser
	}
	session := NewSession(m.now)
	session.Start()

	ctx, cancel := context.WithCancel(context.Background())
	l := &live{
		id:      uuid.NewString(),
		ownerID: userID,
		title:   title,
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	sampler := NewSampler(session, m.provider, userID, m.logger)
	sampler.OnOutcome = m.metrics.Sample
	sampler.OnSample = func(p geo.Point, count int) { m.publishPoint(l.id, p, count) }

	m.mu.Lock()
	m.sessions[l.id] = l
	m.mu.Unlock()
	m.metrics.RecordingStarted()

	ticks, stopTicks := m.ticker(m.interval)
	go func() {
		defer close(l.done)
		defer stopTicks()
		sampler.Run(ctx, ticks)
	}()

	m.logger.Info("recording started", zap.String("recording_id", l.id), zap.String("owner_id", userID))
	return l.snapshot(), nil
}

func (m *Manager) Get(userID, id string) (Snapshot, error) {
	l, err := m.lookup(userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	return l.snapshot(), nil
}

func (m *Manager) Pause(userID, id string) (Snapshot, error) {
	l, err := m.lookup(userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	l.session.Pause()
	return l.snapshot(), nil
}

func (m *Manager) Resume(userID, id string) (Snapshot, error) {
	l, err := m.lookup(userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	l.session.Resume()
	return l.snapshot(), nil
}

// Stop ends the recording and persists it as an itinerary. When persisting
// fails the stopped recording is kept so the caller can retry.
func (m *Manager) Stop(ctx context.Context, userID, id string, req StopRequest) (itinerary.Itinerary, error) {
	l, err := m.lookup(userID, id)
	if err != nil {
		return itinerary.Itinerary{}, err
	}
	l.finishMu.Lock()
	defer l.finishMu.Unlock()
	if l.finished {
		return itinerary.Itinerary{}, ErrNotFound
	}
	l.session.Stop()
	l.halt()

	title := req.Title
	if title == "" {
		title = l.title
	}
	if title == "" {
		title = defaultTitle
	}
	path := l.session.Path()
	it := itinerary.Itinerary{
		Title:       title,
		OwnerID:     l.ownerID,
		Route:       path,
		Pins:        req.Pins,
		DistanceM:   path.LengthM(),
		DurationSec: int64(l.session.Elapsed() / time.Second),
	}

	saved, err := m.creator.Create(ctx, it)
	if err != nil {
		m.logger.Warn("persisting recording failed", zap.String("recording_id", id), zap.Error(err))
		return itinerary.Itinerary{}, err
	}
	l.finished = true
	m.remove(id)
	m.logger.Info("recording stopped", zap.String("recording_id", id), zap.String("itinerary_id", saved.ID),
		zap.Int("points", len(path)))
	return saved, nil
}

// Reset discards the recording and everything it sampled.
func (m *Manager) Reset(userID, id string) (Snapshot, error) {
	l, err := m.lookup(userID, id)
	if err != nil {
		return Snapshot{}, err
	}
	l.finishMu.Lock()
	defer l.finishMu.Unlock()
	if l.finished {
		return Snapshot{}, ErrNotFound
	}
	l.session.Reset()
	l.halt()
	l.finished = true
	m.remove(id)
	m.logger.Info("recording discarded", zap.String("recording_id", id))
	return l.snapshot(), nil
}

// Close halts every live recording without persisting it.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*live{}
	m.mu.Unlock()

	for _, l := range sessions {
		l.halt()
		m.metrics.RecordingEnded()
	}
}

func (m *Manager) lookup(userID, id string) (*live, error) {
	m.mu.Lock()
	l, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if l.ownerID != userID {
		return nil, ErrForbidden
	}
	return l, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.metrics.RecordingEnded()
	}
}

type pointEvent struct {
	RecordingID string    `json:"recording_id"`
	Point       geo.Point `json:"point"`
	PointCount  int       `json:"point_count"`
}

func (m *Manager) publishPoint(id string, p geo.Point, count int) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(pointEvent{RecordingID: id, Point: p, PointCount: count})
	if err != nil {
		return
	}
	m.publisher.Broadcast(Topic(id), payload)
}

// halt cancels sampling and waits for the loop to exit.
func (l *live) halt() {
	l.cancel()
	<-l.done
}

func (l *live) snapshot() Snapshot {
	snap := l.session.snapshot()
	snap.ID = l.id
	snap.OwnerID = l.ownerID
	snap.Title = l.title
	return snap
}

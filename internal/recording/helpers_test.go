package recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/shared/geo"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedProvider answers immediately with its points in order, repeating
// the last one once the script runs out.
type scriptedProvider struct {
	mu     sync.Mutex
	points []geo.Point
	err    error
	calls  int
}

func (p *scriptedProvider) CurrentLocation(context.Context, string) (geo.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if p.err != nil {
		return geo.Point{}, p.err
	}
	if i >= len(p.points) {
		i = len(p.points) - 1
	}
	return p.points[i], nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// gatedProvider blocks call i until release(i). It ignores cancellation on
// purpose so late results can be observed.
type gatedProvider struct {
	mu     sync.Mutex
	calls  int
	gates  []chan struct{}
	points []geo.Point
}

func newGatedProvider(points ...geo.Point) *gatedProvider {
	g := &gatedProvider{points: points}
	for range points {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedProvider) CurrentLocation(context.Context, string) (geo.Point, error) {
	g.mu.Lock()
	i := g.calls
	g.calls++
	gate, p := g.gates[i], g.points[i]
	g.mu.Unlock()
	<-gate
	return p, nil
}

func (g *gatedProvider) release(i int) {
	close(g.gates[i])
}

func (g *gatedProvider) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) record(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[s]++
}

func (o *outcomes) get(s string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[s]
}

type manualTicker struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (m *manualTicker) start(time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time)
	m.chans = append(m.chans, ch)
	return ch, func() {}
}

func (m *manualTicker) tick(i int) {
	m.mu.Lock()
	ch := m.chans[i]
	m.mu.Unlock()
	ch <- time.Time{}
}

type stubCreator struct {
	mu    sync.Mutex
	err   error
	saved []itinerary.Itinerary
}

func (s *stubCreator) Create(_ context.Context, it itinerary.Itinerary) (itinerary.Itinerary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return itinerary.Itinerary{}, s.err
	}
	it.ID = "it-" + it.OwnerID
	s.saved = append(s.saved, it)
	return it, nil
}

func (s *stubCreator) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Broadcast(topic string, _ []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

package itinerary

import (
	"errors"
	"sync"
	"testing"

	"backend-tripmark/internal/shared/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errDB = errors.New("db error")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func sampleItinerary(id, owner string) Itinerary {
	return Itinerary{
		ID:       id,
		Title:    "Ridge walk",
		OwnerID:  owner,
		Location: Location{Name: "Summit", Point: geo.Point{Lat: 1, Lng: 1}},
		Route:    geo.Path{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
		Pins: []Pin{{
			ID:       "pin-1",
			Name:     "Spring",
			Location: geo.Point{Lat: 1.5, Lng: 1.5},
			Images:   []string{"https://img.example/spring.jpg"},
		}},
	}
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingInvalidator) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Broadcast(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
}

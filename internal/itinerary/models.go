package itinerary

import (
	"encoding/json"
	"time"

	"backend-tripmark/internal/score"
	"backend-tripmark/internal/shared/geo"
)

const geohashPrecision = 7

type Location struct {
	Name string `json:"name"`
	geo.Point
	Geohash string `json:"geohash,omitempty"`
}

type Pin struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Location    geo.Point `json:"location"`
	Images      []string  `json:"images,omitempty" validate:"dive,url"`
}

// Itinerary is a persisted recorded trip. Counters are only changed through
// Service.IncrementCounter or a full replace; the flame count is derived.
type Itinerary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title" validate:"required,max=200"`
	OwnerID     string    `json:"owner_id" validate:"required"`
	Location    Location  `json:"location"`
	Route       geo.Path  `json:"route" validate:"dive"`
	Pins        []Pin     `json:"pins" validate:"dive"`
	DistanceM   float64   `json:"distance_m" validate:"gte=0"`
	DurationSec int64     `json:"duration_sec" validate:"gte=0"`
	score.Counters
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i Itinerary) MarshalJSON() ([]byte, error) {
	type plain Itinerary
	return json.Marshal(struct {
		plain
		FlameCount int64 `json:"flame_count"`
	}{plain(i), i.Counters.FlameCount()})
}

// normalize fills derived fields before a write.
func (i *Itinerary) normalize() {
	if i.Route == nil {
		i.Route = geo.Path{}
	}
	if i.Pins == nil {
		i.Pins = []Pin{}
	}
	if i.Location.Point == (geo.Point{}) && len(i.Route) > 0 {
		i.Location.Point = i.Route[0]
	}
	i.Location.Geohash = i.Location.Point.Geohash(geohashPrecision)
	if i.DistanceM == 0 {
		i.DistanceM = i.Route.LengthM()
	}
}

// ScoreUpdate is what listeners receive after a counter commit.
type ScoreUpdate struct {
	ItineraryID string `json:"itinerary_id"`
	score.Counters
	FlameCount int64 `json:"flame_count"`
}

func newScoreUpdate(it Itinerary) ScoreUpdate {
	return ScoreUpdate{ItineraryID: it.ID, Counters: it.Counters, FlameCount: it.FlameCount()}
}

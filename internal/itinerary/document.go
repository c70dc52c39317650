package itinerary

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"backend-tripmark/internal/score"
	"backend-tripmark/internal/shared/geo"

	"github.com/pkg/errors"
)

// document is the stored form of an itinerary. The route is kept as an
// encoded polyline and the counters are decoded leniently so a damaged
// document still yields a usable itinerary.
type document struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	OwnerID     string          `json:"owner_id"`
	Location    Location        `json:"location"`
	Route       string          `json:"route"`
	Pins        []Pin           `json:"pins"`
	DistanceM   float64         `json:"distance_m"`
	DurationSec int64           `json:"duration_sec"`
	Saves       json.RawMessage `json:"saves,omitempty"`
	Clicks      json.RawMessage `json:"clicks,omitempty"`
	NumStarts   json.RawMessage `json:"num_starts,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func encodeDocument(it Itinerary) ([]byte, error) {
	doc := document{
		ID:          it.ID,
		Title:       it.Title,
		OwnerID:     it.OwnerID,
		Location:    it.Location,
		Route:       geo.EncodePath(it.Route),
		Pins:        it.Pins,
		DistanceM:   it.DistanceM,
		DurationSec: it.DurationSec,
		Saves:       json.RawMessage(strconv.FormatInt(it.Saves, 10)),
		Clicks:      json.RawMessage(strconv.FormatInt(it.Clicks, 10)),
		NumStarts:   json.RawMessage(strconv.FormatInt(it.NumStarts, 10)),
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
	return json.Marshal(doc)
}

// decodeDocument returns ErrMalformed when the payload is not a document at
// all. Damaged counters read as 0 and a damaged route reads as empty; the
// second return value reports whether any such defaulting happened.
func decodeDocument(data []byte) (Itinerary, bool, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Itinerary{}, false, errors.Wrap(ErrMalformed, err.Error())
	}
	if doc.ID == "" {
		return Itinerary{}, false, errors.Wrap(ErrMalformed, "missing id")
	}

	route, routeOK := decodeRoute(doc.Route)
	saves, savesOK := lenientCount(doc.Saves)
	clicks, clicksOK := lenientCount(doc.Clicks)
	starts, startsOK := lenientCount(doc.NumStarts)

	it := Itinerary{
		ID:          doc.ID,
		Title:       doc.Title,
		OwnerID:     doc.OwnerID,
		Location:    doc.Location,
		Route:       route,
		Pins:        doc.Pins,
		DistanceM:   doc.DistanceM,
		DurationSec: doc.DurationSec,
		Counters:    score.Counters{Saves: saves, Clicks: clicks, NumStarts: starts},
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if it.Pins == nil {
		it.Pins = []Pin{}
	}
	return it, !(routeOK && savesOK && clicksOK && startsOK), nil
}

func decodeRoute(s string) (geo.Path, bool) {
	path, err := geo.DecodePath(s)
	if err != nil {
		return geo.Path{}, false
	}
	return path, true
}

// lenientCount reads a counter. A missing value is a legitimate 0; anything
// unreadable or negative is also 0 but reported as not ok.
func lenientCount(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && f >= 0 && f < math.MaxInt64 {
		return int64(f), true
	}
	if unq, err := strconv.Unquote(s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(unq), 10, 64); err == nil && n >= 0 {
			return n, false
		}
	}
	return 0, false
}

// Package viewport answers "which itineraries touch what the map is showing".
package viewport

import (
	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/shared/geo"
)

// Filter keeps the itineraries with at least one route point or pin inside
// the bound, in input order. A limit of zero or less means no cap.
func Filter(items []itinerary.Itinerary, b geo.Bound, limit int) []itinerary.Itinerary {
	out := []itinerary.Itinerary{}
	for _, it := range items {
		if limit > 0 && len(out) >= limit {
			break
		}
		if touches(it, b) {
			out = append(out, it)
		}
	}
	return out
}

func touches(it itinerary.Itinerary, b geo.Bound) bool {
	for _, p := range it.Route {
		if b.Contains(p) {
			return true
		}
	}
	for _, pin := range it.Pins {
		if b.Contains(pin.Location) {
			return true
		}
	}
	return false
}

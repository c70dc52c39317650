package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
	"github.com/twpayne/go-polyline"
)

const earthRadiusKm = 6371.0

var ErrInvalidBound = errors.New("invalid bound")

// Point is an immutable latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) Geohash(precision uint) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
}

// Path is an ordered sequence of points in recording order.
type Path []Point

// LengthM sums the great-circle distance between consecutive points.
func (p Path) LengthM() float64 {
	total := 0.0
	for i := 1; i < len(p); i++ {
		total += HaversineKm(p[i-1].Lat, p[i-1].Lng, p[i].Lat, p[i].Lng) * 1000
	}
	return total
}

// Bound is a rectangular viewport. Edges are inclusive. When SouthWest.Lng is
// greater than NorthEast.Lng the bound wraps across the antimeridian.
type Bound struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

func NewBound(south, west, north, east float64) Bound {
	return Bound{
		SouthWest: Point{Lat: south, Lng: west},
		NorthEast: Point{Lat: north, Lng: east},
	}
}

func (b Bound) Validate() error {
	if !b.SouthWest.Valid() || !b.NorthEast.Valid() {
		return errors.Wrap(ErrInvalidBound, "corner out of range")
	}
	if b.SouthWest.Lat > b.NorthEast.Lat {
		return errors.Wrap(ErrInvalidBound, "south is north of north")
	}
	return nil
}

func (b Bound) Contains(p Point) bool {
	if p.Lat < b.SouthWest.Lat || p.Lat > b.NorthEast.Lat {
		return false
	}
	west, east := b.SouthWest.Lng, b.NorthEast.Lng
	if west <= east {
		return p.Lng >= west && p.Lng <= east
	}
	return p.Lng >= west || p.Lng <= east
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// EncodePath renders a path as a Google encoded polyline (1e-5 precision).
func EncodePath(p Path) string {
	if len(p) == 0 {
		return ""
	}
	coords := make([][]float64, len(p))
	for i, pt := range p {
		coords[i] = []float64{pt.Lat, pt.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

func DecodePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, errors.Wrap(err, "decode polyline")
	}
	path := make(Path, len(coords))
	for i, c := range coords {
		path[i] = Point{Lat: c[0], Lng: c[1]}
	}
	return path, nil
}

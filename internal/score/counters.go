// Package score holds the popularity counters of an itinerary and the flame
// count derived from them.
package score

import "github.com/pkg/errors"

const (
	saveWeight  = 2
	clickWeight = 1
	startWeight = 5
)

var ErrUnknownCounter = errors.New("unknown counter")

type Counter string

const (
	Saves     Counter = "saves"
	Clicks    Counter = "clicks"
	NumStarts Counter = "num_starts"
)

func ParseCounter(s string) (Counter, error) {
	switch c := Counter(s); c {
	case Saves, Clicks, NumStarts:
		return c, nil
	}
	return "", errors.Wrapf(ErrUnknownCounter, "%q", s)
}

// Counters are the raw per-itinerary tallies. The flame count is never stored
// alongside them; it is always derived with FlameCount.
type Counters struct {
	Saves     int64 `json:"saves"`
	Clicks    int64 `json:"clicks"`
	NumStarts int64 `json:"num_starts"`
}

func ComputeFlameCount(saves, clicks, numStarts int64) int64 {
	return saveWeight*saves + clickWeight*clicks + startWeight*numStarts
}

func (c Counters) FlameCount() int64 {
	return ComputeFlameCount(c.Saves, c.Clicks, c.NumStarts)
}

func (c Counters) Value(counter Counter) int64 {
	switch counter {
	case Saves:
		return c.Saves
	case Clicks:
		return c.Clicks
	case NumStarts:
		return c.NumStarts
	}
	return 0
}

// Increment adds one to the named counter.
func (c *Counters) Increment(counter Counter) error {
	switch counter {
	case Saves:
		c.Saves++
	case Clicks:
		c.Clicks++
	case NumStarts:
		c.NumStarts++
	default:
		return errors.Wrapf(ErrUnknownCounter, "%q", counter)
	}
	return nil
}

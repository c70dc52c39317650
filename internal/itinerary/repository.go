package itinerary

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("itinerary not found")
	ErrMalformed = errors.New("malformed itinerary document")
	ErrConflict  = errors.New("itinerary transaction conflict")
	ErrForbidden = errors.New("itinerary belongs to another user")
	ErrInvalid   = errors.New("invalid itinerary")
)

type ListFilter struct {
	OwnerID string
	Limit   int
}

// Repository is the document store holding itineraries.
//
// Set is a full replace and is last-writer-wins for every field, counters
// included. RunTransaction reads one document, hands it to fn, and writes the
// result back atomically; if fn returns an error nothing is written.
// Implementations may re-run fn on a fresh read after a write conflict, up to
// a bounded number of attempts, so fn must not have side effects.
type Repository interface {
	Get(ctx context.Context, id string) (Itinerary, error)
	List(ctx context.Context, filter ListFilter) ([]Itinerary, error)
	Set(ctx context.Context, it Itinerary) (Itinerary, error)
	Delete(ctx context.Context, id string) error
	RunTransaction(ctx context.Context, id string, fn func(*Itinerary) error) (Itinerary, error)
}

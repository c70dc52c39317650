package viewport

import (
	"strconv"

	"backend-tripmark/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// RegisterRoutes mounts GET /visible. It must be registered before any
// "/:id" route on the same group.
//
// Results come from the cached snapshot, so counters and flame_count may lag
// increments by up to the cache TTL. GET /itineraries/:id and the
// itinerary:{id} stream carry the current values.
func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/visible", func(c *fiber.Ctx) error {
		b, err := boundFromQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		limit := c.QueryInt("limit", 0)
		if limit < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must not be negative")
		}

		items, err := svc.Visible(c.Context(), b, limit)
		if errors.Is(err, geo.ErrInvalidBound) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(items)
	})
}

func boundFromQuery(c *fiber.Ctx) (geo.Bound, error) {
	var edges [4]float64
	for i, name := range []string{"south", "west", "north", "east"} {
		raw := c.Query(name)
		if raw == "" {
			return geo.Bound{}, errors.Errorf("%s is required", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return geo.Bound{}, errors.Wrapf(err, "parse %s", name)
		}
		edges[i] = v
	}
	return geo.NewBound(edges[0], edges[1], edges[2], edges[3]), nil
}

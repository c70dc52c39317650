package itinerary

import (
	"backend-tripmark/internal/auth"
	"backend-tripmark/internal/score"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 0)
		if limit < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must not be negative")
		}
		items, err := svc.List(c.Context(), ListFilter{OwnerID: c.Query("owner_id"), Limit: limit})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(items)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		it, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(it)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var req Itinerary
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		it, err := svc.Replace(c.Context(), auth.UserID(c), c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(it)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/counters/:counter", authMiddleware, func(c *fiber.Ctx) error {
		counter, err := score.ParseCounter(c.Params("counter"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		it, err := svc.IncrementCounter(c.Context(), c.Params("id"), counter)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(newScoreUpdate(it))
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalid), errors.Is(err, score.ErrUnknownCounter):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

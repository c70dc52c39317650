package recording

import (
	"strings"

	"backend-tripmark/internal/auth"
	"backend-tripmark/internal/itinerary"
	"backend-tripmark/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

var validate = validator.New()

type startRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// RegisterRoutes mounts the recording lifecycle. Every route needs an
// authenticated caller, who must own the recording.
func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := m.Start(auth.UserID(c), req.Title)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Get(auth.UserID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/:id/pause", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Pause(auth.UserID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/:id/resume", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Resume(auth.UserID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req StopRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		it, err := m.Stop(c.Context(), auth.UserID(c), c.Params("id"), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(it)
	})

	r.Post("/:id/reset", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Reset(auth.UserID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})
}

// StreamGuard lets only the owner of a live recording subscribe to its
// topic. Other topics pass through.
func StreamGuard(m *Manager, secret string) stream.Guard {
	return func(c *fiber.Ctx, topic string) error {
		id, ok := strings.CutPrefix(topic, topicPrefix)
		if !ok {
			return nil
		}
		userID, err := auth.WebsocketUser(secret, c)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		if _, err := m.Get(userID, id); err != nil {
			return httpError(err)
		}
		return nil
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoUser):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, itinerary.ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Guard decides whether the request may subscribe to topic. A non-nil error
// rejects the upgrade and is returned to the client as is.
type Guard func(c *fiber.Ctx, topic string) error

// RegisterRoutes mounts GET /ws/:topic. guard may be nil, in which case
// every valid topic is open.
func RegisterRoutes(r fiber.Router, hub *Hub, guard Guard) {
	r.Get("/ws/:topic", func(c *fiber.Ctx) error {
		topic := c.Params("topic")
		if !ValidTopic(topic) {
			return fiber.NewError(fiber.StatusNotFound, "unknown topic")
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if guard != nil {
			if err := guard(c, topic); err != nil {
				return err
			}
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("topic"))
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

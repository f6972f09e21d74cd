// handlers/event_routes.go
package handlers

import (
	"event-registration-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupEventRoutes mounts the public catalog under api and its management under admin.
func SetupEventRoutes(api, admin fiber.Router, events *services.EventService, categories *services.CategoryService) {
	// 🔓 Public catalog
	api.Get("/events", func(c *fiber.Ctx) error {
		list, err := events.List(c.UserContext(), services.EventFilter{
			Search:      c.Query("search"),
			CategoryIDs: queryUints(c, "category"),
			Status:      c.Query("status"),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	api.Get("/events/:id", func(c *fiber.Ctx) error {
		ev, err := events.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ev)
	})

	api.Get("/categories", func(c *fiber.Ctx) error {
		cats, err := categories.List(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cats)
	})

	// 🔒 Admin catalog management
	admin.Get("/events", func(c *fiber.Ctx) error {
		list, err := events.List(c.UserContext(), services.EventFilter{
			Search: c.Query("search"),
			Status: c.Query("status"),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	admin.Post("/events", func(c *fiber.Ctx) error {
		var in services.EventInput
		if handled, err := bind(c, &in); handled {
			return err
		}
		ev, err := events.Create(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(ev)
	})

	admin.Put("/events/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var in services.EventInput
		if handled, err := bind(c, &in); handled {
			return err
		}
		ev, err := events.Update(c.UserContext(), id, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ev)
	})

	admin.Delete("/events/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		if err := events.Delete(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Event deleted"})
	})

	admin.Post("/events/:id/archive", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		ev, err := events.Archive(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ev)
	})

	admin.Get("/events/:id/statistics", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		stats, err := events.Statistics(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	admin.Post("/categories", func(c *fiber.Ctx) error {
		var in services.CategoryInput
		if handled, err := bind(c, &in); handled {
			return err
		}
		cat, err := categories.Create(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	})

	admin.Put("/categories/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var in services.CategoryInput
		if handled, err := bind(c, &in); handled {
			return err
		}
		cat, err := categories.Update(c.UserContext(), id, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cat)
	})

	admin.Delete("/categories/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		if err := categories.Delete(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Category deleted"})
	})
}

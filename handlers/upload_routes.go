// handlers/upload_routes.go
package handlers

import (
	"errors"

	"event-registration-system/middleware"
	"event-registration-system/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SetupUploadRoutes mounts attendee document uploads.
func SetupUploadRoutes(api fiber.Router, auth fiber.Handler, uploader storage.Uploader) {
	api.Post("/uploads", auth, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required", "code": "VALIDATION"})
		}

		key, err := storage.ObjectKey(c.FormValue("kind"), fh.Header.Get(fiber.HeaderContentType), fh.Size)
		if err != nil {
			status := fiber.StatusBadRequest
			if errors.Is(err, storage.ErrTooLarge) {
				status = fiber.StatusRequestEntityTooLarge
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": "VALIDATION"})
		}

		f, err := fh.Open()
		if err != nil {
			return respondError(c, err)
		}
		defer f.Close()

		url, err := uploader.Upload(c.UserContext(), key, f, fh.Size, fh.Header.Get(fiber.HeaderContentType))
		if err != nil {
			return respondError(c, err)
		}

		log.Info().Str("user_id", middleware.UserID(c)).Str("key", key).Msg("📎 [UPLOAD] attendee document stored")
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
	})
}

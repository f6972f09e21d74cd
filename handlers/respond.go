// handlers/respond.go
package handlers

import (
	"errors"
	"strconv"
	"strings"

	"event-registration-system/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldError is one failed validation rule, reported back to the client.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// bind parses the request body into dst and runs its validation tags.
// On failure the 400 response has already been written and handled is true.
func bind(c *fiber.Ctx, dst interface{}) (handled bool, err error) {
	if err := c.BodyParser(dst); err != nil {
		return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"code":    "VALIDATION",
			"details": err.Error(),
		})
	}
	return checkStruct(c, dst)
}

func checkStruct(c *fiber.Ctx, v interface{}) (bool, error) {
	err := validate.Struct(v)
	if err == nil {
		return false, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request", "code": "VALIDATION", "details": err.Error(),
		})
	}
	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Invalid request",
		"code":    "VALIDATION",
		"details": details,
	})
}

// statusFor maps a service error kind onto an HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindDomain:
		return fiber.StatusBadRequest
	case services.KindUnauthorized, services.KindSignature:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	var se *services.Error
	if !errors.As(err, &se) {
		log.Error().Err(err).Str("path", c.Path()).Msg("❌ unexpected error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
			"code":  "INTERNAL",
		})
	}

	status := statusFor(se.Kind)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Str("code", se.Code).Msg("❌ request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": se.Message,
		"code":  se.Code,
	})
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &services.Error{Kind: services.KindValidation, Code: services.ErrValidation.Code, Message: "Invalid " + name}
	}
	return uint(id), nil
}

func queryUints(c *fiber.Ctx, key string) []uint {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64); err == nil && id > 0 {
			ids = append(ids, uint(id))
		}
	}
	return ids
}

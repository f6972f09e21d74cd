// handlers/registration_routes.go
package handlers

import (
	"event-registration-system/middleware"
	"event-registration-system/models"
	"event-registration-system/services"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	TicketSelections []services.TicketSelection `json:"ticketSelections" validate:"required,min=1,dive"`
	Attendees        []services.AttendeeInput   `json:"attendeesData" validate:"required,min=1,dive"`
	PaymentMethod    models.PaymentMethod       `json:"paymentMethod" validate:"required,oneof=ONLINE OFFLINE"`
}

type paymentRequest struct {
	PaymentMethod models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=ONLINE OFFLINE"`
}

type attendeesRequest struct {
	Attendees []services.AttendeeInput `json:"attendees" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Status        models.RegistrationStatus `json:"status" validate:"required,oneof=PENDING CONFIRMED CANCELLED"`
	PaymentStatus models.PaymentStatus      `json:"paymentStatus" validate:"required,oneof=PENDING PAID FAILED REFUNDED"`
}

// SetupRegistrationRoutes mounts the participant workflow. auth guards every user
// route and registerLimit throttles new registrations.
func SetupRegistrationRoutes(api, admin fiber.Router, auth, registerLimit fiber.Handler, regs *services.RegistrationService) {
	// 🔐 Participant routes
	api.Post("/events/:id/register", auth, registerLimit, func(c *fiber.Ctx) error {
		eventID, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var req registerRequest
		if handled, err := bind(c, &req); handled {
			return err
		}

		res, err := regs.CreateRegistration(c.UserContext(), services.CreateRegistrationInput{
			EventID:          eventID,
			UserID:           middleware.UserID(c),
			TicketSelections: req.TicketSelections,
			Attendees:        req.Attendees,
			PaymentMethod:    req.PaymentMethod,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	api.Post("/registrations/:id/payment", auth, func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var req paymentRequest
		if handled, err := bind(c, &req); handled {
			return err
		}
		res, err := regs.ProcessRegistrationPayment(c.UserContext(), id, middleware.UserID(c), req.PaymentMethod)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	api.Get("/registrations/:id", auth, func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		reg, err := regs.GetRegistrationForUser(c.UserContext(), id, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(reg)
	})

	api.Post("/registrations/:id/attendees", auth, func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var req attendeesRequest
		if handled, err := bind(c, &req); handled {
			return err
		}
		reg, err := regs.AddAttendees(c.UserContext(), id, middleware.UserID(c), req.Attendees)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(reg)
	})

	api.Get("/dashboard/registrations", auth, func(c *fiber.Ctx) error {
		list, err := regs.ListUserRegistrations(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	// 🔒 Admin overrides
	admin.Patch("/registrations/:id/status", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var req statusRequest
		if handled, err := bind(c, &req); handled {
			return err
		}
		reg, err := regs.UpdateStatus(c.UserContext(), id, req.Status, req.PaymentStatus)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(reg)
	})

	admin.Post("/registrations/:id/refund", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		reg, err := regs.Refund(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(reg)
	})
}

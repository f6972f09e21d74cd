// handlers/admin_routes.go
package handlers

import (
	"bytes"
	"fmt"
	"strings"

	"event-registration-system/models"
	"event-registration-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes mounts the read-only reporting surface. admin must already
// require the admin role.
func SetupAdminRoutes(admin fiber.Router, reporting *services.ReportingService, analytics *services.AnalyticsService, users *services.UserService) {
	admin.Get("/events/:id/registrations", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		page, err := reporting.ListEventRegistrations(c.UserContext(), id, services.RegistrationFilter{
			AgeCategory:   models.AgeCategory(strings.ToUpper(c.Query("ageCategory"))),
			BeltLevel:     models.BeltLevel(strings.ToUpper(c.Query("beltLevel"))),
			Status:        models.RegistrationStatus(strings.ToUpper(c.Query("status"))),
			PaymentStatus: models.PaymentStatus(strings.ToUpper(c.Query("paymentStatus"))),
			Page:          c.QueryInt("page", 1),
			Limit:         c.QueryInt("limit", 10),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	admin.Get("/events/:id/registrations/export", func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		var buf bytes.Buffer
		if _, err := reporting.ExportRegistrationsCSV(c.UserContext(), id, &buf); err != nil {
			return respondError(c, err)
		}
		return sendCSV(c, services.ExportFilename(id), buf.Bytes())
	})

	admin.Get("/analytics", func(c *fiber.Ctx) error {
		p, err := services.ResolvePeriod(c.Query("period"), c.Query("startDate"), c.Query("endDate"), analytics.Now())
		if err != nil {
			return respondError(c, err)
		}
		d, err := analytics.Dashboard(c.UserContext(), p)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	admin.Get("/analytics/reports", func(c *fiber.Ctx) error {
		p, err := services.ResolvePeriod(c.Query("period"), c.Query("startDate"), c.Query("endDate"), analytics.Now())
		if err != nil {
			return respondError(c, err)
		}
		kind := services.ReportKind(c.Query("type", string(services.ReportRegistrations)))
		report, err := analytics.Report(c.UserContext(), kind, p)
		if err != nil {
			return respondError(c, err)
		}

		if strings.EqualFold(c.Query("format"), "csv") {
			var buf bytes.Buffer
			if err := report.WriteCSV(&buf); err != nil {
				return respondError(c, err)
			}
			name := fmt.Sprintf("%s-report-%s.csv", kind, p.Start.Format("2006-01-02"))
			return sendCSV(c, name, buf.Bytes())
		}
		return c.JSON(report)
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		list, err := users.SearchUsers(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})
}

func sendCSV(c *fiber.Ctx, filename string, body []byte) error {
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(body)
}

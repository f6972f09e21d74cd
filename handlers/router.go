// handlers/router.go
package handlers

import (
	"strings"

	"event-registration-system/logging"
	"event-registration-system/metrics"
	"event-registration-system/middleware"
	"event-registration-system/services"
	"event-registration-system/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Dependencies is everything the HTTP layer needs. Uploader may be nil, in
// which case the upload route is not mounted.
type Dependencies struct {
	AllowedOrigins    []string
	JWTSecret         string
	RegisterRateLimit int

	Events        *services.EventService
	Categories    *services.CategoryService
	Registrations *services.RegistrationService
	Payments      *services.PaymentService
	Reporting     *services.ReportingService
	Analytics     *services.AnalyticsService
	Users         *services.UserService
	Uploader      storage.Uploader
}

func NewApp(d Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "event-registration-system",
		BodyLimit: storage.MaxUploadSize + 1<<20,
	})

	origins := strings.Join(d.AllowedOrigins, ",")
	if origins == "" || origins == "*" {
		origins = "http://localhost:3000"
	}

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	auth := middleware.Authenticate(d.JWTSecret, d.Users)

	api := app.Group("/api")
	admin := api.Group("/admin", auth, middleware.RequireAdmin())

	SetupEventRoutes(api, admin, d.Events, d.Categories)
	SetupRegistrationRoutes(api, admin, auth, middleware.RegisterRateLimiter(d.RegisterRateLimit), d.Registrations)
	SetupPaymentRoutes(api, d.Payments)
	SetupAdminRoutes(admin, d.Reporting, d.Analytics, d.Users)
	if d.Uploader != nil {
		SetupUploadRoutes(api, auth, d.Uploader)
	}

	return app
}

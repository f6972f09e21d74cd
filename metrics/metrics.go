// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RegistrationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventreg",
		Name:      "registrations_created_total",
		Help:      "Registrations committed, by payment method.",
	}, []string{"payment_method"})

	PaymentCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventreg",
		Name:      "payment_callbacks_total",
		Help:      "Gateway notifications handled, by provider and result.",
	}, []string{"provider", "result"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventreg",
		Name:      "gateway_requests_total",
		Help:      "Outbound payment gateway calls.",
	}, []string{"provider", "operation", "result"})

	EventsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Name:      "events_archived_total",
		Help:      "Events archived by the scheduler after their end date.",
	})
)

// Handler exposes the default registry through Fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

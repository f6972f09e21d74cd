package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-registration-system/broker"
	"event-registration-system/config"
	"event-registration-system/database"
	"event-registration-system/handlers"
	"event-registration-system/logging"
	"event-registration-system/payments"
	"event-registration-system/seeds"
	"event-registration-system/services"
	"event-registration-system/storage"
	"event-registration-system/workers"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "event-registration-system",
		Short:         "Event registration and ticketing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL environment variable not set")
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("✅ migrations applied")
			return nil
		},
	})

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog fixtures from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL environment variable not set")
			}
			fh, err := os.Open(seedFile)
			if err != nil {
				return err
			}
			defer fh.Close()

			f, err := seeds.Parse(fh)
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			res, err := seeds.Apply(cmd.Context(), db, f)
			if err != nil {
				return err
			}
			log.Info().Int("categories", res.Categories).Int("events", res.Events).Msg("🌱 seed applied")
			return nil
		},
	}
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seeds/events.yaml", "YAML fixture file")
	root.AddCommand(seedCmd)

	return root
}

func loadConfig() *config.Config {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.Env)
	return cfg
}

func runServe(parent context.Context) error {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	var publisher broker.Publisher = broker.Noop{}
	if cfg.AMQPURL != "" {
		rabbit, err := broker.NewRabbit(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		publisher = rabbit
	}
	defer publisher.Close()

	var uploader storage.Uploader
	if cfg.Storage.Enabled() {
		u, err := storage.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		uploader = u
	}

	eventService := services.NewEventService(db)
	userService := services.NewUserService(db)
	paymentService := services.NewPaymentService(db, gateway, publisher)

	app := handlers.NewApp(handlers.Dependencies{
		AllowedOrigins:    cfg.AllowedOrigins,
		JWTSecret:         cfg.JWTSecret,
		RegisterRateLimit: cfg.RegisterRateLimit,
		Events:            eventService,
		Categories:        services.NewCategoryService(db),
		Registrations:     services.NewRegistrationService(db, gateway, publisher, cfg.AppURL),
		Payments:          paymentService,
		Reporting:         services.NewReportingService(db),
		Analytics:         services.NewAnalyticsService(db),
		Users:             userService,
		Uploader:          uploader,
	})

	sched, err := services.StartArchiveScheduler(ctx, eventService, cfg.ArchiveInterval)
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	go workers.PollPendingPayments(ctx, paymentService, cfg.ReconcileInterval, cfg.ReconcileGrace)

	if cfg.UserSyncURL != "" {
		workers.NewUserSyncWorker(db, userService, cfg.UserSyncURL, cfg.UserSyncToken).Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("provider", gateway.Name()).
		Bool("uploads", uploader != nil).
		Bool("broker", cfg.AMQPURL != "").
		Msg("✅ Server running")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newGateway(cfg *config.Config) (payments.Gateway, error) {
	if cfg.PaymentProvider == config.ProviderMidtrans {
		g, err := payments.NewMidtransGateway(cfg.Midtrans.ServerKey, cfg.Midtrans.Production)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	g, err := payments.NewIpaymuGateway(cfg.Ipaymu.BaseURL, cfg.Ipaymu.APIKey, cfg.Ipaymu.MerchantCode)
	if err != nil {
		return nil, err
	}
	return g, nil
}

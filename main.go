package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/prometheus/client_golang/prometheus"

	"noorulfityan_backend/internals/configs"
	database "noorulfityan_backend/internals/databases"
	"noorulfityan_backend/internals/features/notifications/email"
	"noorulfityan_backend/internals/features/payment/donations/events"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/features/payment/mpesa"
	userRepository "noorulfityan_backend/internals/features/users/user/repository"
	helper "noorulfityan_backend/internals/helpers"
	middlewares "noorulfityan_backend/internals/middlewares"
	routes "noorulfityan_backend/internals/route"
	"noorulfityan_backend/internals/seeds"
)

func main() {
	cfg := configs.MustLoad()

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		ErrorHandler:            helper.ErrorHandler,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))

	// the request budget has to outlive one STK push round trip
	middlewares.SetupMiddlewares(app, cfg.CorsOrigins, cfg.Mpesa.Timeout+10*time.Second)

	// 🔌 DB connect + pool + warm-up
	db := database.ConnectDB(cfg.DB)
	database.TunePool(db)
	if cfg.DB.RunMigrations {
		if err := database.RunMigrations(db); err != nil {
			log.Fatalf("[ERROR] migrations: %v", err)
		}
	}
	seeds.RunAllSeeds(db, cfg.DB.SeedAdmins)
	database.WarmUpQueries(db)

	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	donations := service.New(service.Deps{
		Donations: repository.NewDonationRepository(db),
		Callbacks: repository.NewCallbackEventRepository(db),
		Gateway: mpesa.NewClient(mpesa.Config{
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			Passkey:        cfg.Mpesa.Passkey,
			Shortcode:      cfg.Mpesa.Shortcode,
			CallbackURL:    cfg.Mpesa.CallbackURL,
			BaseURL:        cfg.Mpesa.BaseURL,
			Timeout:        cfg.Mpesa.Timeout,
		}),
		Users:      userRepository.NewUserRepository(db),
		Mailer:     email.NewSMTPSender(cfg.SMTP, cfg.OrgName),
		Events:     publisher,
		Metrics:    service.NewMetrics(prometheus.DefaultRegisterer),
		OrgName:    cfg.OrgName,
		ClaimLease: cfg.Mpesa.EffectiveClaimLease(),
	})

	routes.SetupRoutes(app, routes.Options{
		DB:        db,
		Donations: donations,
		JWTSecret: cfg.JWTSecret,
		Gatherer:  prometheus.DefaultGatherer,
	})

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = cfg.Mpesa.Timeout + 15*time.Second
	app.Server().IdleTimeout = 90 * time.Second

	go func() {
		log.Printf("[INFO] listening on :%s (%s)", cfg.Port, cfg.Env)
		if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
			log.Fatalf("[ERROR] server error: %v", err)
		}
	}()

	// graceful shutdown: stop HTTP, flush events, close the pool
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("[WARN] shutdown: %v", err)
	}
	if err := publisher.Close(); err != nil {
		log.Printf("[WARN] closing event publisher: %v", err)
	}
	database.Close(db)
}

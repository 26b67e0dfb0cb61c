package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	donationRoutes "noorulfityan_backend/internals/features/payment/donations/routes"
	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/features/users/user/model"
	"noorulfityan_backend/internals/middlewares/auth"
)

var startTime time.Time

type Options struct {
	DB        *gorm.DB
	Donations *service.DonationService
	JWTSecret string
	Gatherer  prometheus.Gatherer
}

func SetupRoutes(app *fiber.App, o Options) {
	startTime = time.Now()

	log.Println("[INFO] Setting up base routes...")
	BaseRoutes(app, o.DB, o.Gatherer)

	api := app.Group("/api")

	// ===================== PUBLIC (provider webhooks) =====================
	log.Println("[INFO] Mounting M-Pesa callback route...")
	donationRoutes.MpesaCallbackRoutes(api, o.Donations)

	// ===================== ADMIN =====================
	log.Println("[INFO] Setting up ADMIN group (Auth + role)...")
	admin := api.Group("/admin",
		auth.AuthMiddleware(o.JWTSecret),
		auth.OnlyRoles("Forbidden: admin only", model.RoleAdmin),
	)
	donationRoutes.DonationAdminRoutes(admin, o.Donations)

	// ===================== PRIVATE (USER) =====================
	log.Println("[INFO] Setting up PRIVATE group...")
	private := api.Group("", auth.AuthMiddleware(o.JWTSecret))
	donationRoutes.DonationUserRoutes(private, o.Donations)
}

package route

import (
	"github.com/gofiber/fiber/v2"

	donationController "noorulfityan_backend/internals/features/payment/donations/controller"
	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/middlewares"
)

// DonationUserRoutes mounts the donor endpoints on an authenticated router.
func DonationUserRoutes(api fiber.Router, svc *service.DonationService) {
	donationCtrl := donationController.NewDonationController(svc)
	mpesaCtrl := donationController.NewMpesaController(svc)

	api.Post("/donations", donationCtrl.Create)
	api.Get("/user/donations", donationCtrl.ListMine)

	pay := api.Group("/payments/mpesa", middlewares.PaymentRateLimiter())
	pay.Post("/initiate", mpesaCtrl.Initiate)
	pay.Post("/status", mpesaCtrl.Status)
}

package route

import (
	"github.com/gofiber/fiber/v2"

	donationController "noorulfityan_backend/internals/features/payment/donations/controller"
	"noorulfityan_backend/internals/features/payment/donations/service"
)

// MpesaCallbackRoutes is the provider webhook; it carries no user auth.
func MpesaCallbackRoutes(api fiber.Router, svc *service.DonationService) {
	ctrl := donationController.NewMpesaController(svc)
	api.Post("/payments/mpesa/callback", ctrl.Callback)
}

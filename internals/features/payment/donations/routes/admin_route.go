package route

import (
	"github.com/gofiber/fiber/v2"

	donationController "noorulfityan_backend/internals/features/payment/donations/controller"
	"noorulfityan_backend/internals/features/payment/donations/service"
)

// DonationAdminRoutes expects a router already gated to admins.
func DonationAdminRoutes(admin fiber.Router, svc *service.DonationService) {
	ctrl := donationController.NewDonationAdminController(svc)

	d := admin.Group("/donations")
	d.Get("/", ctrl.List)
	d.Get("/:id", ctrl.Get)
	d.Put("/:id", ctrl.UpdateStatus)

	admin.Get("/mpesa-callback-events", ctrl.ListCallbackEvents)
}

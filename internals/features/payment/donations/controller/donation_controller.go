package controller

import (
	"github.com/gofiber/fiber/v2"

	"noorulfityan_backend/internals/features/payment/donations/dto"
	"noorulfityan_backend/internals/features/payment/donations/service"
	helper "noorulfityan_backend/internals/helpers"
)

type DonationController struct {
	svc *service.DonationService
}

func NewDonationController(svc *service.DonationService) *DonationController {
	return &DonationController{svc: svc}
}

// POST /api/donations
func (ctl *DonationController) Create(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	var req dto.CreateDonationRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	details, err := req.Validate()
	if err != nil {
		return helper.ValidationError(c, err)
	}
	if len(details) > 0 {
		return helper.JsonValidationError(c, details)
	}

	d, err := ctl.svc.CreateDonation(c.UserContext(), service.CreateDonationInput{
		UserID:        userID,
		Amount:        req.Amount,
		Type:          req.Type,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return respondError(c, err)
	}

	return helper.JsonCreated(c, fiber.Map{
		"message":  "Donation created",
		"donation": d,
	})
}

// GET /api/user/donations
func (ctl *DonationController) ListMine(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	rows, err := ctl.svc.ListMyDonations(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonOK(c, fiber.Map{"donations": rows})
}

package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"noorulfityan_backend/internals/features/payment/donations/dto"
	"noorulfityan_backend/internals/features/payment/donations/model"
	"noorulfityan_backend/internals/features/payment/donations/repository"
	"noorulfityan_backend/internals/features/payment/donations/service"
	helper "noorulfityan_backend/internals/helpers"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type DonationAdminController struct {
	svc *service.DonationService
}

func NewDonationAdminController(svc *service.DonationService) *DonationAdminController {
	return &DonationAdminController{svc: svc}
}

// GET /api/admin/donations?status=&type=&search=&page=&per_page=
func (ctl *DonationAdminController) List(c *fiber.Ctx) error {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", model.DonationStatusPending, model.DonationStatusCompleted, model.DonationStatusFailed:
	default:
		return helper.JsonValidationError(c, map[string]string{"status": "must be one of: pending completed failed"})
	}

	p := helper.ResolvePaging(c, defaultPerPage, maxPerPage)
	rows, total, err := ctl.svc.ListDonations(c.UserContext(), repository.ListFilter{
		Status: status,
		Type:   strings.TrimSpace(c.Query("type")),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonList(c, "donations", rows, helper.BuildPagination(total, p, len(rows)))
}

// GET /api/admin/donations/:id
func (ctl *DonationAdminController) Get(c *fiber.Ctx) error {
	id, err := donationIDParam(c)
	if err != nil {
		return err
	}

	d, err := ctl.svc.GetDonation(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonOK(c, fiber.Map{"donation": d})
}

// PUT /api/admin/donations/:id
func (ctl *DonationAdminController) UpdateStatus(c *fiber.Ctx) error {
	id, err := donationIDParam(c)
	if err != nil {
		return err
	}

	var req dto.UpdateDonationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return helper.ValidationError(c, err)
	}

	d, err := ctl.svc.SetStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonOK(c, fiber.Map{
		"message":  "Donation status updated",
		"donation": d,
	})
}

// GET /api/admin/mpesa-callback-events?status=&checkout_request_id=&page=&per_page=
func (ctl *DonationAdminController) ListCallbackEvents(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, defaultPerPage, maxPerPage)
	rows, total, err := ctl.svc.ListCallbackEvents(c.UserContext(), repository.CallbackEventFilter{
		Status:            strings.ToLower(strings.TrimSpace(c.Query("status"))),
		CheckoutRequestID: strings.TrimSpace(c.Query("checkout_request_id")),
		Limit:             p.Limit,
		Offset:            p.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonList(c, "events", rows, helper.BuildPagination(total, p, len(rows)))
}

func donationIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid donation id")
	}
	return id, nil
}

package controller

import (
	"log"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"noorulfityan_backend/internals/features/payment/donations/dto"
	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/features/payment/mpesa"
	helper "noorulfityan_backend/internals/helpers"
)

/* =========================================================
   Controller
========================================================= */

type MpesaController struct {
	svc *service.DonationService
}

func NewMpesaController(svc *service.DonationService) *MpesaController {
	return &MpesaController{svc: svc}
}

// POST /api/payments/mpesa/initiate
func (ctl *MpesaController) Initiate(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	var req dto.InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return helper.ValidationError(c, err)
	}

	res, err := ctl.svc.InitiatePayment(c.UserContext(), req.DonationUUID(), userID, req.PhoneNumber)
	if err != nil {
		return respondError(c, err)
	}

	return helper.JsonOK(c, fiber.Map{
		"message":           "STK push sent. Complete the payment on your phone.",
		"checkoutRequestID": res.CheckoutRequestID,
		"customerMessage":   res.CustomerMessage,
	})
}

// POST /api/payments/mpesa/callback
//
// Called by Safaricom. Anything that was handled (or safely ignored) is
// acknowledged with 200 so the provider stops retrying; only persistence
// failures return 500.
func (ctl *MpesaController) Callback(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)

	var env mpesa.CallbackEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil || env.Body.StkCallback == nil {
		log.Printf("[WARN] mpesa callback: malformed payload: %v", err)
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid callback payload")
	}

	res, err := ctl.svc.HandleCallback(c.UserContext(), env.Body.StkCallback, raw)
	if err != nil {
		return respondError(c, err)
	}

	log.Printf("[INFO] mpesa callback %s -> %s", env.Body.StkCallback.CheckoutRequestID, res.Outcome)
	return helper.JsonOK(c, nil)
}

// POST /api/payments/mpesa/status
func (ctl *MpesaController) Status(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	var req dto.StatusQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return helper.ValidationError(c, err)
	}

	raw, err := ctl.svc.QueryPaymentStatus(c.UserContext(), userID, req.CheckoutRequestID)
	if err != nil {
		return respondError(c, err)
	}
	return helper.JsonOK(c, fiber.Map{"status": raw})
}

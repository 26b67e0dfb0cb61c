package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"noorulfityan_backend/internals/features/payment/donations/service"
	"noorulfityan_backend/internals/features/payment/mpesa"
	helper "noorulfityan_backend/internals/helpers"
)

// respondError maps service and gateway errors onto the HTTP contract.
func respondError(c *fiber.Ctx, err error) error {
	var (
		se *service.StateError
		ve *service.ValidationError
		ge *mpesa.GatewayError
		ae *mpesa.AuthError
		fe *fiber.Error
	)

	switch {
	case errors.As(err, &fe):
		return helper.JsonError(c, fe.Code, fe.Message)
	case errors.As(err, &ve):
		return helper.JsonValidationError(c, map[string]string{ve.Field: ve.Message})
	case errors.Is(err, service.ErrNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, "Donation not found")
	case errors.Is(err, service.ErrForbidden):
		return helper.JsonError(c, fiber.StatusForbidden, "Forbidden")
	case errors.As(err, &se):
		return helper.JsonError(c, fiber.StatusBadRequest, stateMessage(se))
	case errors.Is(err, service.ErrConflict):
		return helper.JsonError(c, fiber.StatusBadRequest,
			"Cannot change status while an M-Pesa payment is in progress. Wait for the payment callback.")
	case errors.As(err, &ge):
		if ge.Rejected() {
			return helper.JsonError(c, fiber.StatusBadRequest, ge.UserMessage())
		}
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to reach M-Pesa, please try again later")
	case errors.As(err, &ae):
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Failed to reach M-Pesa, please try again later")
	default:
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Internal server error")
	}
}

func stateMessage(se *service.StateError) string {
	switch se.Reason {
	case service.ReasonAlreadyProcessed:
		return "Donation already processed"
	case service.ReasonPaymentInProgress:
		return "Payment already in progress. Please wait or contact support."
	case service.ReasonManualSelected:
		return "Manual payment selected for this donation"
	default:
		return se.Error()
	}
}

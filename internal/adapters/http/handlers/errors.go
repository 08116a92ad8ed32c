package handlers

import (
	"errors"

	"servio-crm/internal/core/domain"
	"servio-crm/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// respondError maps the domain error taxonomy onto HTTP statuses:
// validation 400, forbidden 403, not found 404, state conflicts 409,
// unreconciled close 422, everything else 500.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	var valErr *domain.ValidationError
	var stateErr *domain.StateError
	var unrecErr *domain.UnreconciledError

	switch {
	case errors.As(err, &valErr):
		return response.BadRequest(c, valErr.Reason)
	case errors.Is(err, domain.ErrForbidden):
		return response.Forbidden(c, "You don't have permission to perform this action")
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrExpenseNotFound),
		errors.Is(err, domain.ErrReturnNotFound),
		errors.Is(err, domain.ErrReceiptNotFound),
		errors.Is(err, domain.ErrWorkNotFound):
		return response.NotFound(c, err.Error())
	case errors.As(err, &stateErr):
		return response.Conflict(c, stateErr.Error())
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		return response.Conflict(c, err.Error())
	case errors.As(err, &unrecErr):
		return response.UnprocessableEntity(c, unrecErr.Error(), fiber.Map{
			"remainder": unrecErr.Remainder,
		})
	default:
		return response.InternalServerError(c, fallback)
	}
}

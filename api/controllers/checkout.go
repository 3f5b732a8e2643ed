package controllers

import (
	"net/http"

	"github.com/angelmondragon/papshop-backend/api/responses"
	"github.com/angelmondragon/papshop-backend/api/validators"
	"github.com/angelmondragon/papshop-backend/internal/checkout"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

const (
	maxShippingAddressLen = 500
	maxNotesLen           = 1000
)

type checkoutRequest struct {
	ShippingAddress string  `json:"shipping_address" validate:"notblank"`
	Notes           *string `json:"notes"`
}

// Checkout converts the caller's cart into a PENDING order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "checkout")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.CheckoutInput{
			UserID:          userID,
			ShippingAddress: validators.SanitizeString(payload.ShippingAddress, maxShippingAddressLen),
		}
		if payload.Notes != nil {
			notes := validators.SanitizeString(*payload.Notes, maxNotesLen)
			input.Notes = &notes
		}

		order, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

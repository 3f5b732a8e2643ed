package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/papshop-backend/api/responses"
	"github.com/angelmondragon/papshop-backend/api/validators"
	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

const maxStockTextLen = 255

type importStockRequest struct {
	ProductID     uuid.UUID        `json:"product_id" validate:"required"`
	Quantity      int              `json:"quantity" validate:"min=1"`
	PurchasePrice *decimal.Decimal `json:"purchase_price" validate:"omitempty,gte=0"`
	Supplier      *string          `json:"supplier"`
	Note          *string          `json:"note"`
}

type exportStockRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
	Note      *string   `json:"note"`
}

// AdminStockImport records a stock receipt.
func AdminStockImport(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "inventory")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload importStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID.String())
		}

		level, err := svc.ImportStock(ctx, inventory.ImportInput{
			ProductID:     payload.ProductID,
			Quantity:      payload.Quantity,
			PurchasePrice: payload.PurchasePrice,
			Supplier:      sanitizeOptional(payload.Supplier),
			Note:          sanitizeOptional(payload.Note),
			Actor:         userID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, level)
	}
}

// AdminStockExport records a manual stock removal.
func AdminStockExport(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "inventory")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload exportStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID.String())
		}

		level, err := svc.ExportStock(ctx, inventory.ExportInput{
			ProductID: payload.ProductID,
			Quantity:  payload.Quantity,
			Note:      sanitizeOptional(payload.Note),
			Actor:     userID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, level)
	}
}

// AdminStockMovements pages through a product's movement log, newest first.
func AdminStockMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "inventory")
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMovements(r.Context(), productID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminStockReplay recomputes stock from the movement log.
func AdminStockReplay(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "inventory")
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Replay(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*value, maxStockTextLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/papshop-backend/api/middleware"
	"github.com/angelmondragon/papshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// requireUser resolves the authenticated caller or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserUUIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}

package controllers

import (
	"net/http"

	"github.com/angelmondragon/papshop-backend/api/responses"
	"github.com/angelmondragon/papshop-backend/api/validators"
	"github.com/angelmondragon/papshop-backend/internal/dashboard"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

const (
	defaultRecentOrders = 10
	maxRecentOrders     = 100
)

func AdminDashboardStats(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dashboard")
			return
		}

		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func AdminDashboardRecentOrders(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "dashboard")
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultRecentOrders, 1, maxRecentOrders)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recent, err := svc.RecentOrders(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": recent})
	}
}

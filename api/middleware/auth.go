package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/papshop-backend/api/responses"
	"github.com/angelmondragon/papshop-backend/pkg/auth"
	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// Auth requires "Authorization: Bearer <jwt>" and puts the token's user and
// role on the context, for handlers and for log lines alike.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID, role := claims.UserID.String(), string(claims.Role)
			ctx := withCaller(r.Context(), caller{userID: userID, role: role})
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts the scheme in any case and tolerates a bare token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if scheme, rest, _ := strings.Cut(header, " "); strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return header
}

// RequireRole answers 403 unless Auth found the given role.
func RequireRole(role enums.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorRoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, string(role)+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/pagination"
)

func invalidParam(err error, field, message string, extra ...any) *pkgerrors.Error {
	details := map[string]any{"field": field}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i].(string)] = extra[i+1]
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, message).WithDetails(details)
}

// ParseQueryInt returns def when key is absent and rejects values outside
// [min, max].
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(err, key, key+" must be a whole number")
	}
	if n < min || n > max {
		return 0, invalidParam(nil, key, key+" out of range", "min", min, "max", max)
	}
	return n, nil
}

// ParsePagination reads ?limit= and ?cursor=. The cursor is checked by the
// service that decodes it.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}

// ParseUUIDParam reads a chi path parameter as a UUID.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, invalidParam(nil, key, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidParam(err, key, key+" must be a uuid")
	}
	return id, nil
}

package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDiagnostics is what Postgres reported about a failed statement.
type PGDiagnostics struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
	Message    string
}

// Postgres finds the server error in err's chain. pgx errors come from the
// gorm driver; lib/pq errors from database/sql callers such as goose.
func Postgres(err error) (PGDiagnostics, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGDiagnostics{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGDiagnostics{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGDiagnostics{}, false
}

// LogFields flattens err for a structured log line. Empty values are left
// out so client errors log compactly.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{"error": err.Error()}
	if code := CodeOf(err); code != "" {
		fields["error_code"] = string(code)
	}
	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}
	if pg, ok := Postgres(err); ok {
		for key, value := range map[string]string{
			"pg_code":       pg.Code,
			"pg_constraint": pg.Constraint,
			"pg_table":      pg.Table,
			"pg_detail":     pg.Detail,
			"pg_message":    pg.Message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

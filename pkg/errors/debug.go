package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields next to the error
// itself: the typed code, the unwrap chain and, for database failures, the SQLSTATE diagnostics from
// either pgx or lib/pq. These go to logs only, never to clients.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error_code": string(CodeOf(err))}

	var chain []string
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	if pg := postgresDiagnostics(err); pg != nil {
		for k, v := range pg {
			fields[k] = v
		}
	}
	return fields
}

// SQLState returns the SQLSTATE code and constraint name of a postgres error
// raised through pgx or lib/pq. Both are empty for any other error.
func SQLState(err error) (code, constraint string) {
	pg := postgresDiagnostics(err)
	return pg["pg_code"], pg["pg_constraint"]
}

func postgresDiagnostics(err error) map[string]string {
	var pgxErr *pgconn.PgError
	if stderrors.As(err, &pgxErr) {
		return map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_constraint": pgxErr.ConstraintName,
			"pg_table":      pgxErr.TableName,
			"pg_detail":     pgxErr.Detail,
		}
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_constraint": pqErr.Constraint,
			"pg_table":      pqErr.Table,
			"pg_detail":     pqErr.Detail,
		}
	}
	return nil
}

package persistence

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"mailminer/pkg/apperr"
)

const uniqueViolation = "23505"

// translateError maps driver errors to the application taxonomy.
// resource names the record kind for duplicate/not-found messages.
func translateError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.DuplicateKey(resource)
	}
	return err
}

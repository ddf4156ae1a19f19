package database

import (
	"errors"

	"github.com/lib/pq"
)

// isUniqueViolation reports a 23505 unique_violation from PostgreSQL.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

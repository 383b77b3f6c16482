package repository

import (
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (admission numbers, usernames, (student, date) attendance and
// (student, assessment) grades all rely on DB-level uniqueness).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

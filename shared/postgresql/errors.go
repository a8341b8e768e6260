package postgresql

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// Code returns the SQLSTATE of a Postgres error, or "" for other errors.
func Code(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool {
	return Code(err) == pgerrcode.UniqueViolation
}

// IsForeignKeyViolation reports a reference to a missing row.
func IsForeignKeyViolation(err error) bool {
	return Code(err) == pgerrcode.ForeignKeyViolation
}

// IsInvalidTextRepresentation reports a value Postgres could not parse, such as
// a malformed UUID.
func IsInvalidTextRepresentation(err error) bool {
	return Code(err) == pgerrcode.InvalidTextRepresentation
}

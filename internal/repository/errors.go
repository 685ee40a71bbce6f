package repository

import "errors"

// ErrDuplicate is returned when an insert hits a per-owner unique constraint
var ErrDuplicate = errors.New("record already exists")

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

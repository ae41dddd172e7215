package store

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique or referential violations.
	ErrConflict = errors.New("conflict")
	// ErrEmptyBasket is returned when checking out a basket with no items.
	ErrEmptyBasket = errors.New("basket is empty")
)

// InputError carries a validation message safe to show to API callers.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError carries a caller-facing message and matches ErrConflict.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// StockError reports a checkout line that cannot be served.
type StockError struct {
	VariantID string
	Label     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return "insufficient stock for " + e.Label
}

// mapDBError translates driver errors into the package's sentinels.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return conflictf("duplicate value violates %s", pgErr.ConstraintName)
		case "23503":
			return conflictf("record is still referenced (%s)", pgErr.ConstraintName)
		case "23514":
			return invalidf("value violates %s", pgErr.ConstraintName)
		}
	}
	return err
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, ErrConflict) }

package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeInvalidTextRep     = "22P02"
	activeSessionIndexName = "uq_attendance_sessions_active"
)

// mapError translates driver errors into session domain errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == activeSessionIndexName {
		return session.ErrActiveSessionExists
	}

	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		pgconn.Timeout(err) ||
		errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", op, session.ErrStorageUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isInvalidID reports a malformed uuid parameter.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeInvalidTextRep
}

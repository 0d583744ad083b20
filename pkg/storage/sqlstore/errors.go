package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

const pqUniqueViolation = "23505"

// classify maps a driver error onto the auth error taxonomy. notFound is
// returned for sql.ErrNoRows. Any failure after ctx expired is Transient,
// whatever the driver reported.
func classify(ctx context.Context, err error, notFound *auth.Error) error {
	if err == nil {
		return nil
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return auth.Transient("database timeout", err)
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return auth.Transient("request canceled", err)
	case isUniqueViolation(err):
		return auth.ErrDuplicateIdentity.WithCause(err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), isNetError(err):
		return auth.Transient("database unavailable", err)
	case isBusy(err):
		return auth.Transient("database busy", err)
	default:
		return auth.Internal("database error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isBusy(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func kindLabel(err error) string {
	if err == nil {
		return ""
	}
	return auth.KindOf(err).String()
}

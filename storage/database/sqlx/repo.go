// Package sqlxrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trezcool/gamifica/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// dbErr maps sql.ErrNoRows to notFound and anything else to a retryable persistence error.
func dbErr(err error, op string, notFound error) error {
	if err == sql.ErrNoRows && notFound != nil {
		return notFound
	}
	return core.NewPersistenceError(op, err)
}

// pgCode returns the PostgreSQL error code of err, if any.
func pgCode(err error) string {
	if pqErr, ok := err.(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}

func pgConstraint(err error) string {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Constraint
	}
	return ""
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// repo holds what every repository shares: the default executor and the not found error.
type repo struct {
	exec        core.DBExecutor
	errNotFound error
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

// trapNoRowsErr maps psql "no rows" err to the repository not found error
func (r repo) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return r.errNotFound
	}
	return errors.Wrap(err, msg)
}

func (r repo) run(ctx context.Context, b sq.Sqlizer, exec []core.DBExecutor, msg string) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	res, err := r.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, msg)
	}
	return res, nil
}

// affectOne runs b and returns the not found error when no row was affected.
func (r repo) affectOne(ctx context.Context, b sq.Sqlizer, exec []core.DBExecutor, msg string) error {
	res, err := r.run(ctx, b, exec, msg)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return r.errNotFound
	}
	return nil
}

// selectAll runs b and scans every row into dest, a pointer to a slice of structs with db tags.
func (r repo) selectAll(ctx context.Context, dest interface{}, b sq.Sqlizer, exec []core.DBExecutor, msg string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	rows, err := r.getExec(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	defer func() { _ = rows.Close() }()

	if err = sqlx.StructScan(rows, dest); err != nil {
		return errors.Wrap(err, msg)
	}
	return nil
}

// count runs b, a query returning a single integer.
func (r repo) count(ctx context.Context, b sq.Sqlizer, exec []core.DBExecutor, msg string) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var n int
	if err = r.getExec(exec).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return n, nil
}

func ilike(val string) string {
	return "%" + strings.ReplaceAll(val, "%", `\%`) + "%"
}

// validIDs drops the ids that are not uuids, which postgres would reject.
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			out = append(out, id)
		}
	}
	return out
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Replace deletes every row of table where keyColumn = key and COPYs rows in
// its place, in one transaction. The previous set is superseded, never
// merged. It returns the number of rows deleted and inserted.
func Replace(ctx context.Context, pool Pool, table, keyColumn string, key any, columns []string, rows [][]any) (deleted, inserted int64, err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace %s: begin tx", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sql := "DELETE FROM " + pgx.Identifier{table}.Sanitize() + " WHERE " + pgx.Identifier{keyColumn}.Sanitize() + " = $1"
	tag, err := tx.Exec(ctx, sql, key)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace %s: delete", table)
	}

	if len(rows) > 0 {
		inserted, err = tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, 0, eris.Wrapf(err, "db: replace %s: COPY", table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace %s: commit tx", table)
	}
	return tag.RowsAffected(), inserted, nil
}

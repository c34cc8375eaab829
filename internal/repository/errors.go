package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/umadex/umadex-backend/internal/apperror"
)

// notFound maps pgx.ErrNoRows to apperror.ErrNotFound naming the entity.
func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.ErrNotFound.Withf("%s", entity)
	}
	return err
}

// checkVersion turns an optimistic update that matched no row into
// apperror.ErrConflict.
func checkVersion(tag pgconn.CommandTag, err error, entity string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrConflict.Withf("%s", entity)
	}
	return nil
}

// forUpdate appends a row lock to a single-row select.
func forUpdate(query string, lock bool) string {
	if lock {
		return query + " FOR UPDATE"
	}
	return query
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package service

import (
	"database/sql"
	"errors"

	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

// storeError maps repository failures to API errors. Typed errors raised by guards inside a transaction
// pass through unchanged.
func storeError(err error, notFound, internal string) error {
	var typed *appErrors.Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
	}
}

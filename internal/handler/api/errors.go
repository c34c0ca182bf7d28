package api

import (
	"errors"

	"ProTrdx/internal/domain/errs"
	xhttp "ProTrdx/pkg/http"
)

// toAppError maps a domain error kind to its HTTP status. Unknown errors
// become a 500 without leaking the cause.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errs.ErrData:
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errs.ErrConflict, errs.ErrJobTerminal:
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errs.ErrUpstreamUnavailable:
		return xhttp.ServiceUnavailableError("upstream unavailable").WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}

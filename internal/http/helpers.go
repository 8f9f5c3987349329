package http

import (
	"errors"
	"net/http"
	"strings"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/services"
	"tiffin/internal/session"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

var clientErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidRange,
	core.ErrRangeTooLong,
	core.ErrNegativeAmount,
	core.ErrNegativeQuantity,
	core.ErrAmountTooLarge,
	core.ErrQuantityTooLarge,
	core.ErrEmptyItemName,
	core.ErrDuplicateItemID,
	core.ErrInvalidRole,
	services.ErrInvalidAccount,
	services.ErrInvalidSettings,
	errBadRequest,
}

// writeError maps err onto a status code and writes it. Unexpected errors
// are logged and answered without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if fields, ok := validationFields(err); ok {
		ValidationErrorResponse(fields).Write(w)
		return
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			BadRequestError(err.Error()).Write(w)
			return
		}
	}

	switch {
	case errors.Is(err, session.ErrNoSession):
		ErrorResponse(http.StatusUnauthorized, err.Error()).Write(w)
	case errors.Is(err, session.ErrNotApproved), errors.Is(err, session.ErrForbidden):
		ErrorResponse(http.StatusForbidden, err.Error()).Write(w)
	case errors.Is(err, repository.ErrNotFound):
		NotFoundError("not found").Write(w)
	case errors.Is(err, repository.ErrDuplicate):
		ErrorResponse(http.StatusConflict, "already exists").Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()).
				WithErrorType(applog.ErrorTypeInternal))
		InternalServerError("internal error").Write(w)
	}
}

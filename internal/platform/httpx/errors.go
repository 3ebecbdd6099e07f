package httpx

import (
	"errors"
	"net/http"

	"github.com/proeftuin/agrigate/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. The
// authorization vocabulary errors are mapped upstream by authz.RespondError;
// this package stays below the domain packages in the import graph.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrBootstrapViolation):
		Problem(w, http.StatusBadRequest, "Bootstrap Violation", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

package authz

import (
	"errors"
	"net/http"

	"github.com/proeftuin/agrigate/internal/platform/httpx"
)

// RespondError maps the vocabulary errors this package owns before falling
// back to the shared mapping. An unknown resource type surfaces as 404
// carrying the valid-names list, the way every calling service expects it.
func RespondError(w http.ResponseWriter, err error) {
	var unknownResource *UnknownResourceTypeError
	switch {
	case errors.As(err, &unknownResource):
		httpx.Problem(w, http.StatusNotFound, "Resource Type Not Found", unknownResource.Error())
	case errors.Is(err, ErrUnmappedMethod):
		httpx.Problem(w, http.StatusBadRequest, "Unmapped Method", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

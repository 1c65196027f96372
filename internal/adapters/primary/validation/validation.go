package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
)

// MaxBodyBytes caps REST request bodies.
const MaxBodyBytes = 64 << 10

// Validatable is implemented by every request type the relay accepts.
type Validatable interface {
	Validate() error
}

// DecodeAndValidate decodes a JSON request body and runs the request's own
// field validation.
func DecodeAndValidate[T Validatable](w http.ResponseWriter, r *http.Request) (T, error) {
	var req T

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return req, apperrors.NewBadRequestError(err, "Request body is required")
		case errors.As(err, &tooLarge):
			return req, apperrors.NewBadRequestError(err, "Request body is too large")
		default:
			return req, apperrors.NewBadRequestError(err, "Invalid request body")
		}
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

package resolver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/blessingk/neo4j/pkg/utils"
)

var (
	// ErrMissingLinkAttribute is returned when a link names no email, phone or customer id.
	ErrMissingLinkAttribute = errors.New("one of email, phone or customerId is required")
	// ErrMissingSessionKey is returned when a lookup names no session identifier.
	ErrMissingSessionKey = errors.New("at least one session identifier is required")
)

// ValidationError is a caller mistake detected before the store is touched.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	return fmt.Sprintf("invalid request: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func validateRequest[T any](req T) (T, error) {
	req, err := utils.Validate(req)
	if err == nil {
		return req, nil
	}

	var fe *utils.FieldError
	field := ""
	if errors.As(err, &fe) {
		field = fe.Field
	}
	return req, &ValidationError{Field: field, Err: err}
}

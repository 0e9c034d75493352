package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/blessingk/neo4j/internal/repositories/identity"
	"github.com/blessingk/neo4j/pkg/context"
	"github.com/blessingk/neo4j/pkg/resolver"
	"github.com/blessingk/neo4j/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	TraceID   string         `json:"traceId"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		}

		if httperr := ToHTTPError(err); httperr != nil {
			code = httperror.GetStatusCode(httperr)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		log := logger.WithContext(ctx).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

// ToHTTPError maps resolver and repository errors to HTTP errors. It returns nil
// for errors it does not recognize.
func ToHTTPError(err error) *httperror.HTTPError {
	var verr *resolver.ValidationError
	switch {
	case err == nil:
		return nil
	case httperror.IsHTTPError(err):
		return httperror.ToHTTPError(err)
	case errors.As(err, &verr):
		return verr.ToHTTPError()
	case errors.Is(err, identity.ErrCustomerNotFound), errors.Is(err, identity.ErrSessionNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrRelinkConflict):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrStoreUnavailable):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return nil
	}
}

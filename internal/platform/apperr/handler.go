package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Response is the JSON body every error surfaces to clients.
type Response struct {
	Tag        string                 `json:"error"`
	Detail     string                 `json:"detail"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	Fields     map[string]string      `json:"erreurs,omitempty"`
}

// FieldErrors collects per-field validation failures so that a single
// response reports them together.
type FieldErrors struct {
	Fields map[string]string
}

func NewFieldErrors() *FieldErrors {
	return &FieldErrors{Fields: make(map[string]string)}
}

func (f *FieldErrors) Add(field, message string) {
	f.Fields[field] = message
}

func (f *FieldErrors) Empty() bool { return len(f.Fields) == 0 }

func (f *FieldErrors) Error() string { return "validation failed" }

// Err returns nil when no field failed, otherwise a KindValidation error
// carrying the collected fields, so callers can test the kind without
// knowing about FieldErrors.
func (f *FieldErrors) Err() error {
	if f.Empty() {
		return nil
	}
	return New(KindValidation, TagValidation, "one or more fields are invalid").Wrap(f)
}

// HTTPErrorHandler converts application errors into the stable wire format.
// Unknown errors become a generic 500 with no internals leaked.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := Response{Tag: "InternalError", Detail: "an unexpected error occurred"}

		var appErr *Error
		var fieldErrs *FieldErrors
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &appErr):
			status = HTTPStatus(appErr.Kind)
			body = Response{
				Tag:        appErr.Tag,
				Detail:     appErr.Detail,
				Suggestion: appErr.Suggestion,
				Meta:       appErr.Meta,
			}
			if errors.As(err, &fieldErrs) {
				body.Fields = fieldErrs.Fields
			}
		case errors.As(err, &fieldErrs):
			status = http.StatusBadRequest
			body = Response{
				Tag:    TagValidation,
				Detail: "one or more fields are invalid",
				Fields: fieldErrs.Fields,
			}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body = Response{Tag: http.StatusText(status), Detail: messageString(httpErr.Message)}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func messageString(m interface{}) string {
	if s, ok := m.(string); ok {
		return s
	}
	if e, ok := m.(error); ok {
		return e.Error()
	}
	return "request failed"
}

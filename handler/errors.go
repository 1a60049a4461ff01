package handler

import (
	"errors"
	"net/http"
)

// ErrNilResponse is reported when a handler returns no Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with a status code and a client-facing message.
type HTTPError struct {
	Code       int
	Message    string
	RedirectTo string
}

func (e HTTPError) Error() string {
	return e.Message
}

// WithMessage returns a copy of e with a different message.
func (e HTTPError) WithMessage(msg string) HTTPError {
	e.Message = msg
	return e
}

// WithRedirect returns a copy of e that points the client at url.
func (e HTTPError) WithRedirect(url string) HTTPError {
	e.RedirectTo = url
	return e
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Message: "Bad request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrForbidden           = HTTPError{Code: http.StatusForbidden, Message: "Forbidden"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Message: "Not found"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Message: "Internal server error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Message: "Service unavailable"}
)

// classify picks the status and body for err. Messages of non-HTTP errors
// are never exposed to clients.
func classify(err error) (int, ErrorBody) {
	var verr ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorBody{Error: "Validation failed", Fields: verr}
	}

	var herr HTTPError
	if errors.As(err, &herr) {
		msg := herr.Message
		if msg == "" {
			msg = http.StatusText(herr.Code)
		}
		return herr.Code, ErrorBody{Error: msg, RedirectTo: herr.RedirectTo}
	}

	return http.StatusInternalServerError, ErrorBody{Error: ErrInternalServerError.Message}
}

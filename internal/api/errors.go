package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure kinds. Match with errors.Is.
var (
	ErrNetwork        = errors.New("network failure")
	ErrBadCredentials = errors.New("invalid username or password")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrValidation     = errors.New("request rejected")
	ErrNotFound       = errors.New("not found")
)

// StatusError is a response with a status the caller did not expect.
type StatusError struct {
	Op   string
	Code int
	Body string

	kind error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: server returned %d %s", e.Op, e.Code, http.StatusText(e.Code))
	if body := strings.TrimSpace(e.Body); body != "" {
		if len(body) > 200 {
			body = body[:197] + "..."
		}
		msg += ": " + body
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.kind }

func classify(op string, code int) error {
	switch {
	case op == opObtainToken && (code == http.StatusBadRequest || code == http.StatusUnauthorized):
		return ErrBadCredentials
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusBadRequest || code == http.StatusConflict:
		return ErrValidation
	case code == http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

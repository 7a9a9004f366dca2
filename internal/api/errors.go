package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"retriever/internal/jobs"
	"retriever/internal/services"
	"retriever/internal/workflow"
)

// CodeInvalidRequest is the error code for malformed or unsatisfiable input.
const CodeInvalidRequest = "invalid_request"

// ErrorResponse is the payload of every non-2xx answer.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Hint        string `json:"hint,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

var errBadRequest = errors.New("bad request")

// InvalidRequest builds an error answered with 400.
func InvalidRequest(message string) error {
	return fmt.Errorf("%w: %s", errBadRequest, message)
}

func isInvalidRequest(err error) bool {
	return errors.Is(err, errBadRequest) || errors.Is(err, workflow.ErrInvalidRequest)
}

// ErrorFrom maps err to an HTTP status and payload.
func ErrorFrom(err error) (int, ErrorResponse) {
	details := services.Details(err)
	payload := ErrorResponse{
		Error:       string(details.Kind),
		Message:     details.Message,
		Hint:        details.Hint,
		Recoverable: details.Recoverable,
	}
	switch {
	case isInvalidRequest(err):
		payload.Error = CodeInvalidRequest
		payload.Hint = "fix the request and submit again"
		payload.Recoverable = false
		return http.StatusBadRequest, payload
	case errors.Is(err, jobs.ErrInvalidTransition):
		return http.StatusConflict, payload
	}
	switch details.Kind {
	case services.KindNotFound:
		return http.StatusNotFound, payload
	case services.KindCapabilityMismatch:
		return http.StatusUnprocessableEntity, payload
	case services.KindNetwork, services.KindQuota:
		return http.StatusServiceUnavailable, payload
	case services.KindAuth, services.KindExpired:
		return http.StatusBadGateway, payload
	case services.KindCancelled:
		return http.StatusRequestTimeout, payload
	default:
		return http.StatusInternalServerError, payload
	}
}

// Error is a decoded ErrorResponse returned by the client.
type Error struct {
	Status  int
	Payload ErrorResponse
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Payload.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return msg
}

// Kind returns the taxonomy kind the server reported.
func (e *Error) Kind() services.ErrorKind {
	if e.Payload.Error == CodeInvalidRequest {
		return services.KindInternal
	}
	return services.ErrorKind(e.Payload.Error)
}

// InvalidRequest reports whether the server rejected the request as malformed.
func (e *Error) InvalidRequest() bool {
	return e.Payload.Error == CodeInvalidRequest
}

// Is matches the services sentinel for the reported kind.
func (e *Error) Is(target error) bool {
	return target == services.Marker(e.Kind())
}

package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller is expected to react.
type Kind string

const (
	KindCredential Kind = "credential" // forces logout
	KindTransient  Kind = "transient"  // retry or inform, never clears credentials
	KindValidation Kind = "validation" // fail fast, nothing mutated
	KindUpstream   Kind = "upstream"   // backend rejected the request
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Kind       Kind   `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status, Kind: kindForStatus(status)}
}

func Transient(code string, message string, details string) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: http.StatusBadGateway, Kind: KindTransient}
}

// FromStatus builds the error for a non-2xx backend response.
func FromStatus(status int, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return New(codeForStatus(status), message, "", status)
}

func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusUnauthorized
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindCredential
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindUpstream
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return "TIMEOUT"
	default:
		if status >= 500 {
			return "UPSTREAM_ERROR"
		}
		return "REQUEST_FAILED"
	}
}

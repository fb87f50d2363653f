package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
//
// Worker-side failures map to 502 (the gateway reached out and got a bad
// answer), deadline expiry to 504, and storage failures to a plain 500 so
// the fronting load balancer does not eject the instance for a bucket blip.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRemoteRejected), errors.Is(err, ErrEndpointUnreachable), errors.Is(err, ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

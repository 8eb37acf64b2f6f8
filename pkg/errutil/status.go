package errutil

import "net/http"

type CoreStatus string

const (
	StatusNotFound             CoreStatus = "not_found"
	StatusUnprocessableEntity  CoreStatus = "unprocessable_entity"
	StatusUnsupportedMediaType CoreStatus = "unsupported_media_type"
	StatusConflict             CoreStatus = "conflict"
	StatusBadRequest           CoreStatus = "bad_request"
	StatusValidationFailed     CoreStatus = "validation_failed"
	StatusInternal             CoreStatus = "internal"
	StatusTimeout              CoreStatus = "timeout"
	StatusGatewayTimeout       CoreStatus = "gateway_timeout"
	StatusUnauthorized         CoreStatus = "unauthorized"
	StatusForbidden            CoreStatus = "forbidden"
	StatusTooManyRequests      CoreStatus = "too_many_requests"
	StatusClientClosedRequest  CoreStatus = "client_closed_request"
	StatusNotImplemented       CoreStatus = "not_implemented"
	StatusBadGateway           CoreStatus = "bad_gateway"
	StatusServiceUnavailable   CoreStatus = "service_unavailable"
	StatusUnknown              CoreStatus = "unknown"
)

var httpStatus = map[CoreStatus]int{
	StatusNotFound:             http.StatusNotFound,
	StatusUnprocessableEntity:  http.StatusUnprocessableEntity,
	StatusUnsupportedMediaType: http.StatusUnsupportedMediaType,
	StatusConflict:             http.StatusConflict,
	StatusBadRequest:           http.StatusBadRequest,
	StatusValidationFailed:     http.StatusUnprocessableEntity,
	StatusInternal:             http.StatusInternalServerError,
	StatusTimeout:              http.StatusRequestTimeout,
	StatusGatewayTimeout:       http.StatusGatewayTimeout,
	StatusUnauthorized:         http.StatusUnauthorized,
	StatusForbidden:            http.StatusForbidden,
	StatusTooManyRequests:      http.StatusTooManyRequests,
	StatusClientClosedRequest:  499,
	StatusNotImplemented:       http.StatusNotImplemented,
	StatusBadGateway:           http.StatusBadGateway,
	StatusServiceUnavailable:   http.StatusServiceUnavailable,
}

// HTTPStatus maps a CoreStatus to its HTTP response code. Unknown codes map to 500.
func (s CoreStatus) HTTPStatus() int {
	if code, ok := httpStatus[s]; ok {
		return code
	}
	return http.StatusInternalServerError
}

package generator

import "moralduel-controlplane/pkg/errutil"

var (
	ErrDisabled        = errutil.BaseError{Code: errutil.StatusServiceUnavailable, Message: "AI service not available"}
	ErrInvalidResponse = errutil.BaseError{Code: errutil.StatusBadGateway, Message: "AI generated an invalid response"}
)

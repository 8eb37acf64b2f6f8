package task

import "moralduel-controlplane/pkg/errutil"

var (
	ErrUnknownJob     = errutil.BaseError{Code: errutil.StatusNotFound, Message: "unknown job"}
	ErrJobRunning     = errutil.BaseError{Code: errutil.StatusConflict, Message: "job is already running"}
	ErrTriggerDenied  = errutil.BaseError{Code: errutil.StatusForbidden, Message: "not allowed to trigger jobs"}
	ErrEnqueueFailed  = errutil.BaseError{Code: errutil.StatusServiceUnavailable, Message: "failed to enqueue task"}
	ErrInvalidPayload = errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "invalid task payload"}
)

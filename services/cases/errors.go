package cases

import "moralduel-controlplane/pkg/errutil"

var (
	ErrCaseNotFound   = errutil.BaseError{Code: errutil.StatusNotFound, Message: "case not found"}
	ErrCaseNotPending = errutil.BaseError{Code: errutil.StatusConflict, Message: "case is not pending moderation"}
	ErrCaseClosed     = errutil.BaseError{Code: errutil.StatusConflict, Message: "case is closed"}
	ErrNotAllowed     = errutil.BaseError{Code: errutil.StatusForbidden, Message: "not allowed to change this case"}
	ErrVerdictFailed  = errutil.BaseError{Code: errutil.StatusBadGateway, Message: "failed to generate verdict"}
	ErrContentFailed  = errutil.BaseError{Code: errutil.StatusBadGateway, Message: "failed to generate case content"}
)

package reward

import "moralduel-controlplane/pkg/errutil"

var (
	ErrRewardNotFound = errutil.BaseError{Code: errutil.StatusNotFound, Message: "reward not found"}
	ErrInvalidPolicy  = errutil.BaseError{Code: errutil.StatusInternal, Message: "reward percentages must sum to 100"}
)

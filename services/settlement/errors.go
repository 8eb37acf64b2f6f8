package settlement

import "moralduel-controlplane/pkg/errutil"

var (
	ErrNotClaimable       = errutil.BaseError{Code: errutil.StatusConflict, Message: "reward is not claimable"}
	ErrLedgerUnavailable  = errutil.BaseError{Code: errutil.StatusBadGateway, Message: "external ledger unavailable"}
	ErrMissingRewardOwner = errutil.BaseError{Code: errutil.StatusUnauthorized, Message: "missing user"}
)

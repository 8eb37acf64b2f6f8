package participation

import "moralduel-controlplane/pkg/errutil"

var (
	ErrCaseNotFound         = errutil.BaseError{Code: errutil.StatusNotFound, Message: "case not found"}
	ErrArgumentNotFound     = errutil.BaseError{Code: errutil.StatusNotFound, Message: "argument not found"}
	ErrCaseNotActive        = errutil.BaseError{Code: errutil.StatusConflict, Message: "case is not active"}
	ErrVotingClosed         = errutil.BaseError{Code: errutil.StatusConflict, Message: "case voting period has closed"}
	ErrDuplicateVote        = errutil.BaseError{Code: errutil.StatusConflict, Message: "user has already voted on this case"}
	ErrNotVoted             = errutil.BaseError{Code: errutil.StatusConflict, Message: "user must vote on the case first"}
	ErrLikeLimitExceeded    = errutil.BaseError{Code: errutil.StatusConflict, Message: "user can only like 3 arguments per case"}
	ErrDuplicateLike        = errutil.BaseError{Code: errutil.StatusConflict, Message: "user has already liked this argument"}
	ErrLikeNotFound         = errutil.BaseError{Code: errutil.StatusConflict, Message: "user has not liked this argument"}
	ErrAlreadySubmitted     = errutil.BaseError{Code: errutil.StatusConflict, Message: "user has already submitted an argument for this case"}
	ErrInsufficientLikes    = errutil.BaseError{Code: errutil.StatusConflict, Message: "user must like 3 arguments before submitting their own"}
	ErrArgumentCaseMismatch = errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "argument does not belong to this case"}
)

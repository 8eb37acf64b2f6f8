package badge

import "moralduel-controlplane/pkg/errutil"

var ErrMissingUser = errutil.BaseError{Code: errutil.StatusUnauthorized, Message: "missing user"}

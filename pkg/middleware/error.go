package middleware

import (
	"errors"
	"net/http"

	"moralduel-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error as a JSON envelope.
// Errors that are not a BaseError are reported as internal.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var v errutil.BaseError
		if errors.As(last.Err, &v) {
			if v.Status() == errutil.StatusInternal {
				zap.L().Error("request failed",
					zap.String("path", c.FullPath()),
					zap.Error(v),
				)
			}
			c.JSON(v.Status().HTTPStatus(), v.JSON())
			return
		}

		zap.L().Error("unhandled request error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    errutil.StatusInternal,
			"message": "internal error",
		}})
	}
}

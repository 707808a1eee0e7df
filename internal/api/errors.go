package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"go.uber.org/zap"
)

// statusFor maps an error kind to the HTTP status the caller can act on.
// Anything unclassified is a transient failure: 503, never a bare 500.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTenantMismatch, apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes err as JSON. Classified errors carry their code and
// message; internal faults are logged and reported as retryable.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if kind == apperr.KindUnavailable {
		logger.Error(op,
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Int64("tenant_id", middleware.GetTenantID(c)),
			zap.Error(err))
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(status, gin.H{
			"error":     "unavailable",
			"message":   "temporarily unavailable, retry",
			"retryable": true,
		})
		return
	}

	code, msg := kind.String(), err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		code, msg = e.Code, e.Message
	}
	body := gin.H{"error": code, "message": msg}
	if kind == apperr.KindConflict && code == apperr.ErrConcurrencyConflict.Code {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

// Recovery turns a panic into the same retryable 503 as any other internal
// fault.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic in handler",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":     "unavailable",
			"message":   "temporarily unavailable, retry",
			"retryable": true,
		})
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": msg})
}

// parseID reads a positive integer path parameter. It writes the 400 itself
// and reports false when the value is unusable.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

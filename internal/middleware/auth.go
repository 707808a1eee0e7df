package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/auth"
	"go.uber.org/zap"
)

// Context keys for storing claims in gin.Context. Handlers read them through
// the helpers below, never with c.Get directly.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyTenantID = "tenant_id"
	ContextKeyRole     = "role"

	HeaderTenantID = "X-Tenant-ID"
)

// AuthMiddleware validates the bearer token and the tenant header.
//
// Every request names its tenant twice: in the signed token and in the
// X-Tenant-ID header. A missing or malformed value on either side is a 401.
// Two well-formed values that disagree are a 403: the caller is authenticated
// but is reaching into another community, and that attempt is logged.
func AuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		tenantID, err := strconv.ParseInt(c.GetHeader(HeaderTenantID), 10, 64)
		if err != nil || tenantID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid " + HeaderTenantID + " header",
			})
			return
		}
		if tenantID != claims.TenantID {
			logger.Warn("tenant header does not match token",
				zap.String("request_id", GetRequestID(c)),
				zap.Int64("user_id", claims.UserID),
				zap.Int64("token_tenant_id", claims.TenantID),
				zap.Int64("header_tenant_id", tenantID),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "tenant_mismatch",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// RequireAdmin refuses callers whose token does not carry an admin or
// broker role. It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role != auth.RoleAdmin && role != auth.RoleBroker {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "broker access required",
			})
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyUserID)
}

func GetTenantID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyTenantID)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

package authentication

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/hospital-equipment-service/internal/account"
	"github.com/mehmetcc/hospital-equipment-service/internal/token"
)

// ContextClaimsKey is the key under which verified access claims are stored in Gin context.
const ContextClaimsKey = "claims"

// challenge answers 401 with a bearer challenge header.
func challenge(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, credential, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	if credential == "" || strings.ContainsAny(credential, " \t") {
		return "", false
	}
	return credential, true
}

// AuthMiddleware admits requests that carry a valid access token and stores its claims in the context.
func AuthMiddleware(service AuthenticationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			challenge(c, "missing Authorization header")
			return
		}
		raw, ok := bearerToken(header)
		if !ok {
			challenge(c, "expected Authorization: Bearer <token>")
			return
		}

		claims, err := service.Authorize(c.Request.Context(), raw)
		if err != nil {
			logger.Debug("access token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			challenge(c, "invalid or expired access token")
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// RoleMiddleware must run after AuthMiddleware.
func RoleMiddleware(logger *zap.Logger, roles ...account.Role) gin.HandlerFunc {
	allowed := make(map[account.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			challenge(c, "unauthorized")
			return
		}
		if _, permitted := allowed[claims.Role]; permitted {
			c.Next()
			return
		}

		logger.Warn("role not permitted",
			zap.Uint("user_id", claims.AccountID),
			zap.String("role", string(claims.Role)),
			zap.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

func ClaimsFromContext(c *gin.Context) (*token.Claims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.Claims)
	return claims, ok
}

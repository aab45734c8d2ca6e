package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bloomwire/ordercore/internal/domain/identity"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

const identityKey = "ordercore.identity"

// Observability attaches a request-scoped logger (request id, method, path)
// to the request context and records HTTP RED metrics per route template.
func Observability(tel observability.Observability) gin.HandlerFunc {
	base := tel.Logger()
	reqCounter := tel.Metrics().Counter(observability.MHTTPRequests)
	durHistogram := tel.Metrics().Histogram(observability.MHTTPRequestDuration)

	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", rid)

		logger := base.With(
			observability.F("request_id", rid),
			observability.F("method", c.Request.Method),
			observability.F("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(logctx.With(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reqCounter.Add(1,
			observability.L("method", c.Request.Method),
			observability.L("route", route),
			observability.L("status", http.StatusText(c.Writer.Status())),
		)
		durHistogram.Observe(time.Since(start).Seconds(),
			observability.L("method", c.Request.Method),
			observability.L("route", route),
		)
	}
}

// Auth verifies the Bearer token (HS256) and stores the caller identity for
// the handlers. Tokens carry user_id and an optional roles claim.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			abortError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			abortError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid claims")
			return
		}
		userID, _ := claims["user_id"].(string)
		if userID == "" {
			abortError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "token has no user_id")
			return
		}

		ident := identity.Identity{UserID: userID}
		if rawRoles, ok := claims["roles"].([]any); ok {
			for _, r := range rawRoles {
				if role, ok := r.(string); ok {
					ident.Roles = append(ident.Roles, role)
				}
			}
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// RequireAdmin gates a route group to callers carrying the admin role. It
// must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).IsAdmin() {
			abortError(c, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) identity.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}
	}
	ident, _ := v.(identity.Identity)
	return ident
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

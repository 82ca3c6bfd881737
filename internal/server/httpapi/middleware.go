package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	claimsKey    = "claims"

	msgBadCredentials = "Incorrect username or password"
	msgUnauthorized   = "Could not validate credentials"
	msgInternal       = "internal error"
)

// RequestID stamps every request with a uuid, reusing a well-formed
// X-Request-ID sent by the client, and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(common.RequestIDHeaderName, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func (s *HTTPServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "request",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// RequireAccessToken admits a request only with a valid bearer access token
// for the principal. Claims are stored on the context, see ClaimsFrom.
func RequireAccessToken(a Authorizer, l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.Authorize(bearerToken(c.GetHeader(common.AuthorizationHeaderName)))
		if err != nil {
			l.Warn(c.Request.Context(), "access denied", "request_id", requestID(c), "error", err)
			abortUnauthorized(c, msgUnauthorized)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireAccessToken.
func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msg})
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

type sessionResponse struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// login accepts form (OAuth2 password flow) or JSON credentials.
func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	res, err := s.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(c, err, msgBadCredentials)
		return
	}

	s.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{Token: res.AccessToken, TokenType: "bearer", ExpiresIn: res.ExpiresIn})
}

func (s *HTTPServer) refresh(c *gin.Context) {
	raw, _ := c.Cookie(common.RefreshTokenCookieName)

	res, err := s.sessions.Refresh(c.Request.Context(), raw)
	if err != nil {
		s.fail(c, err, msgUnauthorized)
		return
	}

	if res.RefreshToken != "" {
		s.setRefreshCookie(c, res.RefreshToken)
	}
	c.JSON(http.StatusOK, tokenResponse{Token: res.AccessToken, TokenType: "bearer", ExpiresIn: res.ExpiresIn})
}

func (s *HTTPServer) logout(c *gin.Context) {
	raw, _ := c.Cookie(common.RefreshTokenCookieName)

	if err := s.sessions.Logout(c.Request.Context(), raw); err != nil {
		s.fail(c, err, msgUnauthorized)
		return
	}

	s.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) session(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		abortUnauthorized(c, msgUnauthorized)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time.UTC()})
}

// fail maps the 401 family to one generic message and everything else to
// 500. The precise cause only reaches the log.
func (s *HTTPServer) fail(c *gin.Context, err error, unauthorizedMsg string) {
	ctx := c.Request.Context()
	if common.IsUnauthenticated(err) {
		s.logger.Warn(ctx, "authentication failed", "request_id", requestID(c), "path", c.FullPath(), "error", err)
		abortUnauthorized(c, unauthorizedMsg)
		return
	}
	s.logger.Error(ctx, "request failed", "request_id", requestID(c), "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": msgInternal})
}

func (s *HTTPServer) setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(s.opts.Cookie.SameSite)
	c.SetCookie(common.RefreshTokenCookieName, value, s.opts.Cookie.MaxAge, s.opts.Cookie.Path, "", !s.opts.Cookie.Insecure, true)
}

func (s *HTTPServer) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(s.opts.Cookie.SameSite)
	c.SetCookie(common.RefreshTokenCookieName, "", -1, s.opts.Cookie.Path, "", !s.opts.Cookie.Insecure, true)
}

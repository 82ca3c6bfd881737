// Package httpapi exposes the session flows over HTTP with gin: login,
// silent refresh through an HttpOnly cookie, logout and a bearer-token gate
// for protected routes.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server/auth"
	"github.com/dmitrijs2005/brainbox/internal/server/services"
	"github.com/gin-gonic/gin"
)

// SessionService is the part of services.SessionService the transport uses.
type SessionService interface {
	Authorizer
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, raw string) (*services.RefreshResult, error)
	Logout(ctx context.Context, raw string) error
}

// Authorizer checks bearer access tokens.
type Authorizer interface {
	Authorize(token string) (*auth.Claims, error)
}

// CookieOptions control the refresh-token cookie. The cookie carries the
// Secure attribute unless Insecure is set.
type CookieOptions struct {
	Insecure bool
	SameSite http.SameSite
	Path     string
	// MaxAge in seconds, normally the refresh TTL.
	MaxAge int
}

// Options configure an HTTPServer.
type Options struct {
	Address         string
	CertFile        string
	KeyFile         string
	Cookie          CookieOptions
	ShutdownTimeout time.Duration
}

type HTTPServer struct {
	opts     Options
	sessions SessionService
	logger   logging.Logger
	engine   *gin.Engine
}

func NewHTTPServer(opts Options, l logging.Logger, sessions SessionService) *HTTPServer {
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/api/auth"
	}
	if opts.Cookie.SameSite == 0 {
		opts.Cookie.SameSite = http.SameSiteStrictMode
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &HTTPServer{
		opts:     opts,
		sessions: sessions,
		logger:   l.With("module", "http_server"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root handler, for tests and for embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Engine exposes the gin engine so a host application can mount its own
// routes behind RequireAccessToken.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

func (s *HTTPServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), s.accessLog())

	api := r.Group("/api")
	api.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	g := api.Group("/auth")
	g.POST("/token", s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.GET("/session", RequireAccessToken(s.sessions, s.logger), s.session)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully. TLS is used
// when both CertFile and KeyFile are set.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	tls := s.opts.CertFile != "" && s.opts.KeyFile != ""
	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String(), "tls", tls)

	if tls {
		err = srv.ServeTLS(listen, s.opts.CertFile, s.opts.KeyFile)
	} else {
		err = srv.Serve(listen)
	}
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

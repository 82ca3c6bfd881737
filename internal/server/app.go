// Package server wires the brainbox session subsystem: storage, token codec,
// session service, expiry sweeper and the HTTP transport, and runs them until
// a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server/auth"
	"github.com/dmitrijs2005/brainbox/internal/server/config"
	"github.com/dmitrijs2005/brainbox/internal/server/httpapi"
	"github.com/dmitrijs2005/brainbox/internal/server/password"
	"github.com/dmitrijs2005/brainbox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/brainbox/internal/server/services"
	"github.com/dmitrijs2005/brainbox/internal/timex"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	sessions *services.SessionService
	http     *httpapi.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB) (*App, error) {
	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return nil, err
	}

	clock := timex.SystemClock{}
	codec, err := auth.NewCodec(c.SecretKey, clock)
	if err != nil {
		return nil, err
	}

	sessions, err := services.NewSessionService(services.SessionDeps{
		Hasher:        hasher,
		Codec:         codec,
		RefreshTokens: rm.RefreshTokens(db),
		Clock:         clock,
		Logger:        logger,
	}, services.SessionConfig{
		Username:            c.Username,
		HashedPassword:      c.HashedPassword,
		AccessTTL:           c.AccessTokenValidityDuration,
		RefreshTTL:          c.RefreshTokenValidityDuration,
		RotateRefreshTokens: c.RotateRefreshTokens,
	})
	if err != nil {
		return nil, err
	}

	hs := httpapi.NewHTTPServer(httpapi.Options{
		Address:  c.Address,
		CertFile: c.CertFile,
		KeyFile:  c.KeyFile,
		Cookie: httpapi.CookieOptions{
			Insecure: !c.CookieSecure,
			SameSite: c.SameSite(),
			Path:     c.CookiePath,
			MaxAge:   int(c.RefreshTokenValidityDuration.Seconds()),
		},
	}, logger, sessions)

	return &App{config: c, logger: logger, db: db, sessions: sessions, http: hs}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (app *App) Handler() http.Handler {
	return app.http.Handler()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) warnInsecureSettings(ctx context.Context) {
	if app.config.UsesDefaultSecret() {
		app.logger.Warn(ctx, "token secret is the built-in default, set BRAINBOX_SECRET_KEY")
	}
	if app.config.OpenMode() {
		app.logger.Warn(ctx, "no hashed password configured, every login succeeds")
	}
	if !app.config.CookieSecure {
		app.logger.Warn(ctx, "refresh cookie is sent without the Secure attribute")
	}
}

// Run serves until ctx is canceled or a termination signal arrives, then
// waits for the HTTP server and the sweeper to stop and closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "driver", app.config.DatabaseDriver, "rotate_refresh_tokens", app.config.RotateRefreshTokens)
	app.warnInsecureSettings(ctx)

	app.initSignalHandler(cancelFunc)

	var (
		wg      sync.WaitGroup
		httpErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server", "error", err)
			httpErr = err
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessions.RunSweeper(ctx, app.config.CleanupInterval)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close", "error", err)
		}
	}

	app.logger.Info(context.Background(), "App stopped")
	return httpErr
}

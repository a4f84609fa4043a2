package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/laudofy/laudofy/internal/devserver"
	"github.com/laudofy/laudofy/internal/logger"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type ServeCmd struct {
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:3000" env:"LAUDOFY_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"LAUDOFY_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"LAUDOFY_TLS_KEY"`

	// Auth configuration
	JWTSecret  string        `help:"HMAC secret for access tokens (at least 32 bytes)" required:"" env:"LAUDOFY_JWT_SECRET"`
	AccessTTL  time.Duration `help:"access token lifetime" default:"15m" env:"LAUDOFY_ACCESS_TTL"`
	RefreshTTL time.Duration `help:"refresh token lifetime" default:"168h" env:"LAUDOFY_REFRESH_TTL"`

	// Login throttling, per client IP
	LoginInterval time.Duration `help:"minimum interval between login attempts" default:"2s" env:"LAUDOFY_LOGIN_INTERVAL"`
	LoginBurst    int           `help:"login attempts allowed in a burst" default:"5" env:"LAUDOFY_LOGIN_BURST"`

	CORSOrigins []string `help:"allowed CORS origins" default:"http://localhost:5173" env:"LAUDOFY_CORS_ORIGINS"`
	Seed        string   `help:"YAML seed file (defaults to the built-in fixtures)" type:"existingfile" env:"LAUDOFY_SEED"`
	Sandbox     bool     `help:"mark email deliveries as sandboxed" default:"true" negatable:"" env:"LAUDOFY_EMAIL_SANDBOX"`
	Tracing     bool     `help:"enable tracing" default:"false" env:"LAUDOFY_TRACING"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting development backend")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "laudofy-devserver", globals.Version, 1.0)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	seed := devserver.DefaultSeed()
	if c.Seed != "" {
		loaded, err := devserver.LoadSeed(c.Seed)
		if err != nil {
			return fmt.Errorf("failed to load seed: %w", err)
		}
		seed = loaded
	}

	cfg := devserver.DefaultConfig()
	cfg.JWTSecret = []byte(c.JWTSecret)
	cfg.AccessTTL = c.AccessTTL
	cfg.RefreshTTL = c.RefreshTTL
	cfg.LoginRate = rate.Every(c.LoginInterval)
	cfg.LoginBurst = c.LoginBurst
	cfg.CORSOrigins = c.CORSOrigins
	cfg.EmailSandbox = c.Sandbox

	srv, err := devserver.New(cfg, seed)
	if err != nil {
		return fmt.Errorf("failed to create development backend: %w", err)
	}

	httpServer := configureHTTPServer(c.Listen, srv.Handler())

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" && c.Key != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info().Str("listen", c.Listen).Int("users", len(seed.Users)).Msg("Development backend listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/laudofy/laudofy/internal/console"
	"github.com/rs/zerolog/log"
)

// ConsoleCmd serves the guarded views locally.
type ConsoleCmd struct {
	Listen string `help:"Listen address for the console" default:"127.0.0.1:8080" env:"LAUDOFY_CONSOLE_LISTEN"`
}

func (c *ConsoleCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}

	if err := a.client.InitCSRF(ctx); err != nil {
		log.Warn().Err(err).Msg("initial csrf fetch failed")
	}

	srv := &http.Server{
		Addr:              c.Listen,
		Handler:           console.New(a.client, a.session),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Console listening on http://%s\n", c.Listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("console server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down console: %w", err)
	}
	return nil
}

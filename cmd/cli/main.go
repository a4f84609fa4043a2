package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/laudofy/laudofy/cmd/cli/internal/commands"
	"github.com/laudofy/laudofy/internal/logger"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd   `cmd:"" help:"Log in to LaudoFy"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Log out and clear stored tokens"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the logged in user"`
		Refresh commands.RefreshCmd `cmd:"" help:"Refresh the stored tokens"`
		Laudos  commands.LaudosCmd  `cmd:"" help:"Work with laudos"`
		Console commands.ConsoleCmd `cmd:"" help:"Serve the guarded views locally"`

		Pacientes  commands.PacientesCmd  `cmd:"" help:"Register and edit patients"`
		Exames     commands.ExamesCmd     `cmd:"" help:"Register exams"`
		Usuarios   commands.UsuariosCmd   `cmd:"" help:"Manage user accounts (admin)"`
		Financeiro commands.FinanceiroCmd `cmd:"" help:"Billing configuration and statements (admin)"`

		Server    string        `help:"LaudoFy API base URL" default:"http://localhost:3000/api" env:"LAUDOFY_SERVER"`
		StateDir  string        `help:"Directory holding the stored tokens" default:"~/.laudofy" type:"path" env:"LAUDOFY_STATE_DIR"`
		Timeout   time.Duration `help:"Request timeout" default:"30s" env:"LAUDOFY_TIMEOUT"`
		Cache     bool          `help:"Cache GET responses on disk" env:"LAUDOFY_CACHE"`
		Telemetry bool          `help:"Export metrics and traces over OTLP" env:"LAUDOFY_TELEMETRY"`
		Debug     bool          `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("laudofy"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	if cli.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, "laudofy-cli", version, 1.0)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize telemetry, continuing without it")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("failed to shutdown telemetry")
				}
			}()
		}
	}

	err := cmd.Run(&commands.Globals{
		Debug:    cli.Debug,
		Version:  version,
		Server:   cli.Server,
		StateDir: cli.StateDir,
		Timeout:  cli.Timeout,
		Cache:    cli.Cache,
	})
	cmd.FatalIfErrorf(err)
}

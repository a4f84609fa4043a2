package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/session"
	"github.com/rs/zerolog/log"
)

var errNotLoggedIn = errors.New("not logged in\n\nRun 'laudofy login <email>' to sign in")

type Globals struct {
	Debug    bool
	Version  string
	Server   string
	StateDir string
	Timeout  time.Duration
	Cache    bool
}

// app bundles the token store, session and client for one invocation.
type app struct {
	store   *credentials.FileStore
	session *session.Session
	client  *client.Client
}

func (g *Globals) open() (*app, error) {
	store, err := credentials.NewFileStore(g.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	sess := session.New(store, session.WithNavigator(session.NavigatorFunc(navigate)))
	if err := sess.Init(); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	cfg := client.DefaultConfig()
	if g.Server != "" {
		cfg.ServerURL = g.Server
	}
	if g.Timeout > 0 {
		cfg.Timeout = g.Timeout
	}
	cfg.Debug = g.Debug
	if g.Cache {
		cfg.Cache = true
		cfg.CacheDir = filepath.Join(store.Dir(), "cache")
	}

	c, err := client.New(cfg, store, client.WithSessionExpirer(sess))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &app{store: store, session: sess, client: c}, nil
}

func (a *app) requireLogin() error {
	if a.session.IsAuthenticated() {
		return nil
	}
	if refresh, ok := a.session.RefreshToken(); ok && refresh != "" {
		return fmt.Errorf("access token expired\n\nRun 'laudofy refresh' or 'laudofy login <email>'")
	}
	return errNotLoggedIn
}

// navigate is the CLI's stand-in for view navigation.
func navigate(path string) {
	if path == session.SessionExpiredPath {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'laudofy login <email>' to sign in again.")
		return
	}
	log.Debug().Str("path", path).Msg("navigate")
}

// describe wraps a client error with the message shown to users.
func describe(action string, err error) error {
	return fmt.Errorf("failed to %s: %w\n\n%s", action, err, client.UserMessage(err))
}

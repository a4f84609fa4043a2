package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoginCmd exchanges credentials for a session.
type LoginCmd struct {
	Email string `arg:"" help:"Account email"`
	Senha string `help:"Account password (prompted when empty)" env:"LAUDOFY_SENHA"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}

	senha := c.Senha
	if senha == "" {
		if senha, err = promptPassword("Senha: "); err != nil {
			return err
		}
	}

	// a failure here is retried by the first mutating request
	if err := a.client.InitCSRF(ctx); err != nil {
		log.Debug().Err(err).Msg("initial csrf fetch failed")
	}

	pair, err := a.client.Login(ctx, c.Email, senha)
	if err != nil {
		return describe("log in", err)
	}
	if err := a.session.Login(pair.AccessToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	u := a.session.User()
	if u == nil {
		return errors.New("the server returned an unusable access token")
	}

	fmt.Printf("Logged in as %s (%s)\n", displayName(u.Nome, u.Email), u.Role)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// LogoutCmd ends the session locally and on the server.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}

	if _, ok := a.session.RefreshToken(); ok {
		if err := a.client.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
		}
	}
	if err := a.session.Logout(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	fmt.Println("Logged out.")
	return nil
}

// WhoamiCmd prints the user derived from the stored access token.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	u := a.session.User()
	fmt.Printf("ID:     %s\n", u.ID)
	fmt.Printf("Nome:   %s\n", u.Nome)
	fmt.Printf("Email:  %s\n", u.Email)
	fmt.Printf("Role:   %s\n", u.Role)
	fmt.Printf("Server: %s\n", a.client.BaseURL())
	return nil
}

// RefreshCmd exchanges the stored refresh token for a new pair.
type RefreshCmd struct{}

func (c *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}

	refresh, ok := a.session.RefreshToken()
	if !ok || refresh == "" {
		return errNotLoggedIn
	}

	pair, err := a.client.RefreshTokens(ctx, refresh)
	if err != nil {
		return describe("refresh tokens", err)
	}
	if err := a.session.Login(pair.AccessToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	fmt.Println("Tokens refreshed.")
	return nil
}

func displayName(nome, email string) string {
	if nome == "" {
		return email
	}
	return nome + " <" + email + ">"
}

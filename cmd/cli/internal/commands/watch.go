package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/live"
)

// watchHooks lets tests act while a watch is starting up.
var watchHooks struct {
	beforeLoad func(ctx context.Context)
	loaded     func(b *laudo.Board)
}

// LaudosWatchCmd follows live laudo updates.
type LaudosWatchCmd struct {
	Status      string        `help:"Only print events for laudos in this status" default:""`
	Reconnect   bool          `help:"Reconnect with backoff when the live channel drops"`
	MaxAttempts int           `help:"Reconnect attempts before giving up (0 is unlimited)" default:"10"`
	MaxInterval time.Duration `help:"Longest wait between reconnect attempts" default:"30s"`
}

func (w *LaudosWatchCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open()
	if err != nil {
		return err
	}
	if err := a.requireLogin(); err != nil {
		return err
	}

	status, err := parseStatus(w.Status)
	if err != nil {
		return err
	}

	board := laudo.NewBoard()

	opts := []live.Option{
		live.WithToken(func() (string, bool) {
			return a.store.Get(credentials.KeyAccessToken)
		}),
	}
	if w.Reconnect {
		b := backoff.NewExponentialBackOff()
		b.MaxInterval = w.MaxInterval
		opts = append(opts, live.WithReconnect(b, w.MaxAttempts))
	}

	// dial before listing; the board holds early events and replays them on Load
	ch, err := live.Dial(ctx, live.URL(a.client.BaseURL()), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect live channel: %w", err)
	}
	defer ch.Close()

	apply := live.BoardHandler(board)
	runErr := make(chan error, 1)
	go func() {
		runErr <- ch.Run(ctx, func(ev live.Event) {
			apply(ev)
			if status == "" || ev.Laudo.Status == status {
				printEvent(ev)
			}
		})
	}()

	page, err := a.client.ListLaudos(ctx, client.LaudoFilter{})
	if err != nil {
		return describe("list laudos", err)
	}
	if watchHooks.beforeLoad != nil {
		watchHooks.beforeLoad(ctx)
	}
	board.Load(page.Laudos)
	if watchHooks.loaded != nil {
		watchHooks.loaded(board)
	}

	fmt.Printf("Watching %d laudos (press Ctrl+C to stop)...\n", len(board.Snapshot()))
	fmt.Println(strings.Repeat("=", 50))

	err = <-runErr
	if errors.Is(err, context.Canceled) || errors.Is(err, live.ErrClosed) {
		fmt.Println("Watch finished")
		return nil
	}
	return err
}

func printEvent(ev live.Event) {
	label := "updated"
	if ev.Type == laudo.EventCreated {
		label = "created"
	}
	fmt.Printf("[%s] %-7s %s %q v%d\n",
		time.Now().Format("15:04:05"),
		label,
		ev.Laudo.ID,
		ev.Laudo.Status,
		ev.Laudo.Versao)
}

// Package live subscribes to the backend's push channel of laudo events.
//
// A dropped connection ends delivery unless reconnection was requested with
// WithReconnect; callers that need a consistent list reload it after Run
// returns.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrClosed = errors.New("live channel closed")

// Event is one pushed update.
type Event struct {
	Type  laudo.EventKind `json:"event"`
	Laudo models.Laudo    `json:"data"`
}

// Handler receives events in arrival order.
type Handler func(Event)

// BoardHandler feeds events into b.
func BoardHandler(b *laudo.Board) Handler {
	return func(ev Event) {
		b.Apply(ev.Type, ev.Laudo)
	}
}

// TokenSource returns the current access token.
type TokenSource func() (string, bool)

type Option func(*Channel)

// WithToken authenticates each dial with the token ts returns.
func WithToken(ts TokenSource) Option {
	return func(c *Channel) {
		c.token = ts
	}
}

// WithHTTPClient sets the client used for the upgrade request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Channel) {
		c.httpClient = hc
	}
}

// WithReconnect redials after a dropped connection, waiting b between
// attempts. Run gives up after maxAttempts consecutive failures; zero
// means retry until the context ends.
func WithReconnect(b backoff.BackOff, maxAttempts int) Option {
	return func(c *Channel) {
		c.backoff = b
		c.maxAttempts = maxAttempts
	}
}

// Channel is a live connection to the backend's event stream.
type Channel struct {
	url         string
	token       TokenSource
	httpClient  *http.Client
	backoff     backoff.BackOff
	maxAttempts int

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// URL derives the stream URL from the API base URL.
func URL(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath("ws").String()
}

// Dial connects to the event stream at wsURL.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Channel, error) {
	c := &Channel{url: wsURL}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Channel) connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != nil {
		if token, ok := c.token(); ok && token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		_ = old.CloseNow()
	}

	log.Debug().Str("url", c.url).Msg("live channel connected")
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Next blocks until the next event. Unknown event types are skipped.
func (c *Channel) Next(ctx context.Context) (Event, error) {
	conn := c.current()
	if conn == nil {
		return Event{}, ErrClosed
	}

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return Event{}, ErrClosed
			}
			return Event{}, fmt.Errorf("failed to read event: %w", err)
		}

		if !ev.Type.Valid() {
			log.Debug().Str("event", string(ev.Type)).Msg("skipping unknown live event")
			continue
		}

		telemetry.GetMetrics().LiveEventsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("event", string(ev.Type))))
		return ev, nil
	}
}

// Run delivers events to h until ctx ends or the connection is lost and
// cannot be re-established.
func (c *Channel) Run(ctx context.Context, h Handler) error {
	for {
		ev, err := c.Next(ctx)
		if err == nil {
			h(ev)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.backoff == nil || c.isClosed() {
			return err
		}

		log.Warn().Err(err).Msg("live channel lost")
		if rerr := c.reconnect(ctx); rerr != nil {
			return rerr
		}
	}
}

func (c *Channel) reconnect(ctx context.Context) error {
	c.backoff.Reset()

	for attempt := 1; ; attempt++ {
		wait := c.backoff.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: reconnect gave up", ErrClosed)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		telemetry.GetMetrics().LiveReconnectsTotal.Add(ctx, 1)

		err := c.connect(ctx)
		if err == nil {
			log.Info().Int("attempts", attempt).Msg("live channel reconnected")
			return nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("next_retry", wait).Msg("live reconnect failed")

		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			return fmt.Errorf("%w: reconnect failed after %d attempts: %w", ErrClosed, attempt, err)
		}
	}
}

// Close ends the connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.closed = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "closed")
}

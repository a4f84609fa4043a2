package devserver

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

type envelope struct {
	Event laudo.EventKind `json:"event"`
	Data  models.Laudo    `json:"data"`
}

// hub fans laudo events out to connected subscribers. Slow subscribers
// lose events rather than block publishers.
type hub struct {
	mu   sync.Mutex
	subs map[chan envelope]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan envelope]struct{})}
}

func (h *hub) subscribe() chan envelope {
	ch := make(chan envelope, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) publish(kind laudo.EventKind, l models.Laudo) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- envelope{Event: kind, Data: l}:
		default:
			log.Warn().Str("event", string(kind)).Msg("dropping event for slow subscriber")
		}
	}
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// subscribed before the handshake completes, so a client sees every
	// event published after its dial returns
	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(s.cfg.CORSOrigins),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user := userFromContext(r.Context())
	log.Debug().Str("user", user.Email).Msg("live subscriber connected")

	// reads only to notice the client going away
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutdown")
			return
		case <-readErr:
			_ = conn.CloseNow()
			return
		case ev, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// originHosts reduces CORS origins to the host patterns websocket.Accept
// matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			hosts = append(hosts, origin)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

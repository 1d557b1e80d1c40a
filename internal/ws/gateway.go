// Package ws bridges broadcast topics to connected websocket clients. The
// socket inherits the broadcast contract: best effort, at most once. A
// client that needs correctness keeps polling the fetch endpoint.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeTimeout = 10 * time.Second

	// sendBuffer bounds per-client queueing; a client that cannot drain it
	// loses events, same as any broadcast subscriber.
	sendBuffer = 64
)

// Authorize decides whether an identity may subscribe to a topic. Nil means
// allow everything (trusted deployments, tests).
type Authorize func(ctx context.Context, identity *auth.Identity, topic string) bool

// Gateway upgrades websocket connections and fans broadcast events into
// them.
type Gateway struct {
	broadcaster broadcast.Broadcaster
	authorize   Authorize
}

// NewGateway creates a gateway over the given broadcaster.
func NewGateway(broadcaster broadcast.Broadcaster, authorize Authorize) *Gateway {
	return &Gateway{broadcaster: broadcaster, authorize: authorize}
}

// clientCommand is the only inbound frame we accept: topic management.
type clientCommand struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// Handle runs one websocket session. Closing the socket tears down every
// subscription it opened; leaking them would be a resource leak bug.
func (g *Gateway) Handle(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := &session{
		gateway:  g,
		identity: identity,
		conn:     conn,
		send:     make(chan broadcast.Event, sendBuffer),
		subs:     make(map[string]broadcast.Subscription),
		done:     make(chan struct{}),
	}
	session.run(c.Request().Context())
	return nil
}

type session struct {
	gateway  *Gateway
	identity *auth.Identity
	conn     *websocket.Conn

	send chan broadcast.Event
	done chan struct{}

	mu   sync.Mutex
	subs map[string]broadcast.Subscription
}

func (s *session) run(ctx context.Context) {
	defer s.teardown()

	go s.writeLoop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		for _, topic := range cmd.Subscribe {
			s.subscribe(ctx, topic)
		}
		for _, topic := range cmd.Unsubscribe {
			s.unsubscribe(topic)
		}
	}
}

func (s *session) subscribe(ctx context.Context, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	if g := s.gateway; g.authorize != nil && !g.authorize(ctx, s.identity, topic) {
		log.Debug().Str("topic", topic).Msg("Websocket subscribe denied")
		return
	}

	s.mu.Lock()
	if _, exists := s.subs[topic]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	sub, err := s.gateway.broadcaster.Subscribe(ctx, topic)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Websocket subscribe failed")
		return
	}

	s.mu.Lock()
	s.subs[topic] = sub
	s.mu.Unlock()

	go func() {
		for ev := range sub.Events() {
			select {
			case s.send <- ev:
			case <-s.done:
				return
			default:
				// client not keeping up, drop
			}
		}
	}()
}

func (s *session) unsubscribe(topic string) {
	s.mu.Lock()
	sub, ok := s.subs[topic]
	if ok {
		delete(s.subs, topic)
	}
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.send:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (s *session) teardown() {
	close(s.done)

	s.mu.Lock()
	subs := s.subs
	s.subs = map[string]broadcast.Subscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.conn.Close()
}

package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hallway/internal/broadcast"
)

// WSSubscription adapts a websocket session to the broadcast.Subscription
// shape the Watcher consumes, so the push path looks the same whether it
// comes straight off a broker or through the gateway.
type WSSubscription struct {
	conn *websocket.Conn
	ch   chan broadcast.Event
	once sync.Once
}

// DialWS connects to the server's websocket gateway and subscribes to the
// given topics.
func DialWS(baseURL, token string, topics ...string) (*WSSubscription, error) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/api/v1/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	if err := conn.WriteJSON(map[string][]string{"subscribe": topics}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &WSSubscription{conn: conn, ch: make(chan broadcast.Event, 64)}
	go sub.readLoop()
	return sub, nil
}

func (s *WSSubscription) readLoop() {
	defer close(s.ch)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev broadcast.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// not keeping up, drop
		}
	}
}

// Events returns the push event feed.
func (s *WSSubscription) Events() <-chan broadcast.Event { return s.ch }

// Close shuts the socket down.
func (s *WSSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
	})
	return err
}

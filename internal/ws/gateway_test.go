package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/broadcast"
)

func newTestGateway(t *testing.T, authorize Authorize) (*broadcast.MemoryHub, *websocket.Conn) {
	t.Helper()

	hub := broadcast.NewMemoryHub()
	t.Cleanup(func() { hub.Close() })

	e := echo.New()
	gateway := NewGateway(hub, authorize)
	e.GET("/ws", func(c echo.Context) error {
		c.Set(string(auth.IdentityContextKey), &auth.Identity{UserID: "alice"})
		return gateway.Handle(c)
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func send(t *testing.T, conn *websocket.Conn, cmd clientCommand) {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readEvent(t *testing.T, conn *websocket.Conn) (broadcast.Event, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return broadcast.Event{}, false
	}
	var ev broadcast.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev, true
}

// publishUntilReceived retries because the subscribe command is processed
// asynchronously from the client's perspective. Publishing happens in a
// background goroutine against a single blocking read: gorilla/websocket
// treats any read error (including a deadline timeout) as fatal to the
// connection, so the read side must not be used to poll.
func publishUntilReceived(t *testing.T, hub *broadcast.MemoryHub, conn *websocket.Conn, ev broadcast.Event) broadcast.Event {
	t.Helper()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			if err := hub.Publish(context.Background(), ev); err != nil {
				t.Errorf("publish failed: %v", err)
				return
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "event never reached the websocket client")
	var got broadcast.Event
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestGatewayDeliversSubscribedTopics(t *testing.T) {
	hub, conn := newTestGateway(t, nil)

	send(t, conn, clientCommand{Subscribe: []string{broadcast.ConversationTopic("c1")}})

	got := publishUntilReceived(t, hub, conn, broadcast.Event{
		Topic: broadcast.ConversationTopic("c1"),
		Kind:  broadcast.EventNewMessage,
	})
	assert.Equal(t, broadcast.EventNewMessage, got.Kind)
	assert.Equal(t, broadcast.ConversationTopic("c1"), got.Topic)
}

func TestGatewayUnsubscribeStopsDelivery(t *testing.T) {
	hub, conn := newTestGateway(t, nil)
	topic := broadcast.ConversationTopic("c1")

	send(t, conn, clientCommand{Subscribe: []string{topic}})
	publishUntilReceived(t, hub, conn, broadcast.Event{Topic: topic, Kind: broadcast.EventNewMessage})

	send(t, conn, clientCommand{Unsubscribe: []string{topic}})
	time.Sleep(100 * time.Millisecond)

	// Drain anything already in flight, then verify silence.
	for {
		if _, ok := readEvent(t, conn); !ok {
			break
		}
	}
	require.NoError(t, hub.Publish(context.Background(), broadcast.Event{Topic: topic, Kind: broadcast.EventNewMessage}))
	_, ok := readEvent(t, conn)
	assert.False(t, ok, "event delivered after unsubscribe")
}

func TestGatewayAuthorization(t *testing.T) {
	deny := func(ctx context.Context, identity *auth.Identity, topic string) bool {
		return topic == broadcast.UserTopic(identity.UserID)
	}
	hub, conn := newTestGateway(t, deny)

	// Own user topic is allowed.
	send(t, conn, clientCommand{Subscribe: []string{broadcast.UserTopic("alice")}})
	got := publishUntilReceived(t, hub, conn, broadcast.SidebarUpdateEvent("alice"))
	assert.Equal(t, broadcast.EventSidebarUpdate, got.Kind)

	// A denied topic is silently ignored.
	send(t, conn, clientCommand{Subscribe: []string{broadcast.ConversationTopic("secret")}})
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), broadcast.Event{
		Topic: broadcast.ConversationTopic("secret"),
		Kind:  broadcast.EventNewMessage,
	}))
	_, ok := readEvent(t, conn)
	assert.False(t, ok, "denied topic must not deliver")
}

func TestGatewayIgnoresGarbageFrames(t *testing.T) {
	hub, conn := newTestGateway(t, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// Session must survive and still accept commands.
	send(t, conn, clientCommand{Subscribe: []string{broadcast.ConversationTopic("c1")}})
	got := publishUntilReceived(t, hub, conn, broadcast.Event{
		Topic: broadcast.ConversationTopic("c1"),
		Kind:  broadcast.EventNewMessage,
	})
	assert.Equal(t, broadcast.EventNewMessage, got.Kind)
}

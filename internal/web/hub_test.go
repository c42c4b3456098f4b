package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kotonoha/internal/engine"
)

func addClient(h *EventHub, id string, buffer int) *Client {
	client := &Client{ID: id, Send: make(chan []byte, buffer), Hub: h}
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	return client
}

func TestEventHubBroadcastDeliversToAllClients(t *testing.T) {
	hub := NewEventHub(nil)
	first := addClient(hub, "first", 4)
	second := addClient(hub, "second", 4)

	hub.broadcastEvent(engine.Event{Type: "loading", IsLoading: true})

	for _, client := range []*Client{first, second} {
		select {
		case data := <-client.Send:
			var event engine.Event
			require.NoError(t, json.Unmarshal(data, &event))
			assert.Equal(t, "loading", event.Type)
			assert.True(t, event.IsLoading)
		default:
			t.Fatalf("client %s received nothing", client.ID)
		}
	}
}

func TestEventHubBroadcastSkipsSlowClient(t *testing.T) {
	hub := NewEventHub(nil)
	slow := addClient(hub, "slow", 1)
	slow.Send <- []byte("stale")
	healthy := addClient(hub, "healthy", 4)

	done := make(chan struct{})
	go func() {
		hub.broadcastEvent(engine.Event{Type: "loading"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a client with a full send buffer")
	}

	assert.Len(t, healthy.Send, 1, "healthy clients still receive the event")
	assert.Len(t, slow.Send, 1, "the slow client keeps only its stale message")
}

func TestEventHubNotifyDropsWhenFull(t *testing.T) {
	hub := NewEventHub(nil)

	// One past capacity; the overflow must be dropped, not block
	for i := 0; i <= cap(hub.broadcast); i++ {
		hub.Notify(engine.Event{Type: "turn"})
	}

	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}

func TestEventHubUnregisterClosesClient(t *testing.T) {
	hub := NewEventHub(nil)
	client := addClient(hub, "leaving", 4)
	require.Equal(t, 1, hub.ClientCount())

	hub.unregisterClient(client)
	assert.Zero(t, hub.ClientCount())

	_, open := <-client.Send
	assert.False(t, open, "send channel is closed on unregister")

	// A second unregister of the same client is a no-op
	hub.unregisterClient(client)
	assert.Zero(t, hub.ClientCount())
}

func TestServeWSDeliversEventsOverWebSocket(t *testing.T) {
	hub := NewEventHub(nil)
	go hub.Run()

	handlers := NewHandlers(nil, nil, hub, nil)
	server := httptest.NewServer(http.HandlerFunc(handlers.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Notify(engine.Event{Type: "error", Error: "provider unreachable"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event engine.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "error", event.Type)
	assert.Equal(t, "provider unreachable", event.Error)

	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *EventHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", want)
}

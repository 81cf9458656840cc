package monitoring

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func startTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Start()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialTestHub(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitForClients(t, hub, 1)
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", want, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubPublishReachesSubscribers(t *testing.T) {
	hub, srv := startTestHub(t)
	conn := dialTestHub(t, hub, srv)

	hub.Publish("model_loaded", map[string]interface{}{"generation": 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Type != "model_loaded" {
		t.Errorf("expected type model_loaded, got %q", event.Type)
	}
	if event.ID == "" {
		t.Error("expected an event id")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	var data map[string]int
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["generation"] != 1 {
		t.Errorf("expected generation 1, got %v", data)
	}
}

func TestHubTracksDisconnects(t *testing.T) {
	hub, srv := startTestHub(t)
	conn := dialTestHub(t, hub, srv)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubClosesConnectionsAfterStop(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Start()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	hub.Stop()
	time.Sleep(50 * time.Millisecond) // let the hub loop wind down

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to be closed")
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		t.Fatal("connection left open after hub stop")
	}
}

func TestHubDropAfterStop(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Start()
	hub.Stop()
	time.Sleep(50 * time.Millisecond) // let the hub loop wind down

	done := make(chan struct{})
	go func() {
		hub.drop(&Client{send: make(chan []byte, 1)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drop blocked after hub stop")
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Start()
	defer hub.Stop()

	// must never block the caller
	for i := 0; i < 500; i++ {
		hub.Publish("retrain_started", map[string]interface{}{"generation": i})
	}
}

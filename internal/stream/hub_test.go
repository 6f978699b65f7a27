package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whale-futures/models"
)

type wireMessage struct {
	Type string           `json:"type"`
	Rows []map[string]any `json:"rows"`
}

func position(t *testing.T, raw string) models.Position {
	t.Helper()
	var p models.Position
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	return p
}

func startHub(t *testing.T, snapshot func() []models.Position) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(snapshot, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_SendsSnapshotOnConnect(t *testing.T) {
	rows := []models.Position{
		position(t, `{"id":"old","traderUid":"u1","openAt":1000}`),
		position(t, `{"id":"new","traderUid":"u1","openAt":2000}`),
	}
	_, srv := startHub(t, func() []models.Position { return rows })

	msg := readMessage(t, dial(t, srv))

	if msg.Type != MessageTypeRows {
		t.Errorf("type = %q, want %q", msg.Type, MessageTypeRows)
	}
	if len(msg.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(msg.Rows))
	}
	if msg.Rows[0]["id"] != "new" || msg.Rows[1]["id"] != "old" {
		t.Errorf("rows not sorted newest first: %v", msg.Rows)
	}
}

func TestHub_EmptySnapshotIsArray(t *testing.T) {
	_, srv := startHub(t, func() []models.Position { return nil })
	conn := dial(t, srv)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"rows":[]`) {
		t.Errorf("expected empty rows array, got %s", data)
	}
}

func TestHub_PublishReachesClients(t *testing.T) {
	hub, srv := startHub(t, nil)
	first := dial(t, srv)
	second := dial(t, srv)
	waitForClients(t, hub, 2)

	hub.Publish([]models.Position{position(t, `{"id":"p1","traderUid":"u1","symbol":"BTC_USDT"}`)})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		if len(msg.Rows) != 1 || msg.Rows[0]["symbol"] != "BTC_USDT" {
			t.Errorf("unexpected message %+v", msg)
		}
	}
}

func TestHub_BroadcastsCurrentRows(t *testing.T) {
	var (
		mu      sync.Mutex
		current = []models.Position{position(t, `{"id":"p1","traderUid":"u1","symbol":"BTC_USDT"}`)}
	)
	hub, srv := startHub(t, func() []models.Position {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	conn := dial(t, srv)
	readMessage(t, conn)
	waitForClients(t, hub, 1)

	mu.Lock()
	current = []models.Position{position(t, `{"id":"p2","traderUid":"u1","symbol":"ETH_USDT"}`)}
	mu.Unlock()
	// a stale snapshot delivered after the newer one must not win
	hub.Publish([]models.Position{position(t, `{"id":"p1","traderUid":"u1","symbol":"BTC_USDT"}`)})

	msg := readMessage(t, conn)
	if len(msg.Rows) != 1 || msg.Rows[0]["id"] != "p2" {
		t.Errorf("expected current rows, got %+v", msg)
	}
}

func TestHub_PublishCoalesces(t *testing.T) {
	hub := NewHub(nil, nil)
	for i := range 5 {
		hub.Publish([]models.Position{{ID: fmt.Sprintf("p%d", i)}})
	}

	if n := len(hub.changed); n != 1 {
		t.Errorf("expected one pending signal, got %d", n)
	}
	if rows := hub.currentRows(); len(rows) != 1 || rows[0].ID != "p4" {
		t.Errorf("expected latest rows, got %+v", rows)
	}
}

func TestClient_OfferEvictsOldest(t *testing.T) {
	c := &client{send: make(chan []byte, 2)}
	c.offer([]byte("a"))
	c.offer([]byte("b"))
	c.offer([]byte("c"))

	if got := string(<-c.send) + string(<-c.send); got != "bc" {
		t.Errorf("queued %q, want %q", got, "bc")
	}
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitForClients(t, hub, 0)
}

func TestHub_PublishWithoutRunDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for range sendBufferSize * 2 {
			hub.Publish(nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list", nil, "http://evil.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"not listed", []string{"http://localhost:5173"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:5173"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}

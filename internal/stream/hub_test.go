package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/model"
)

func trade(userID, symbol string) model.Transaction {
	return model.Transaction{
		ID:     uuid.New(),
		UserID: userID,
		Symbol: symbol,
		Side:   model.SideBuy,
		Shares: 1,
		Price:  decimal.NewFromInt(10),
		Total:  decimal.NewFromInt(10),
	}
}

func TestHubRoutesByUser(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	defer h.Close()

	alice := h.Subscribe("alice")
	alice2 := h.Subscribe("alice")
	bob := h.Subscribe("bob")

	h.Publish(trade("alice", "AAPL"))
	h.Publish(trade("bob", "MSFT"))
	h.Publish(trade("carol", "TSLA"))

	if got := alice.Pending(); len(got) != 1 || got[0].Symbol != "AAPL" {
		t.Errorf("alice pending = %v, want one AAPL trade", got)
	}
	if got := alice2.Pending(); len(got) != 1 {
		t.Errorf("second alice subscriber pending = %d, want 1", len(got))
	}
	if got := bob.Pending(); len(got) != 1 || got[0].Symbol != "MSFT" {
		t.Errorf("bob pending = %v, want one MSFT trade", got)
	}
	if got := h.Published(); got != 3 {
		t.Errorf("Published() = %d, want 3", got)
	}
}

func TestSubscriptionClose(t *testing.T) {
	h := NewHub(DefaultConfig(), nil)
	sub := h.Subscribe("alice")
	if h.Subscribers("alice") != 1 {
		t.Fatalf("Subscribers() = %d, want 1", h.Subscribers("alice"))
	}

	sub.Close()
	sub.Close()
	if h.Subscribers("alice") != 0 {
		t.Errorf("Subscribers() = %d after Close, want 0", h.Subscribers("alice"))
	}
	if _, ok := sub.Next(); ok {
		t.Error("Next() on closed subscription returned true")
	}

	h.Close()
	if h.Subscribe("alice") != nil {
		t.Error("Subscribe() after hub Close should return nil")
	}
}

func TestServeStreamsTrades(t *testing.T) {
	h := NewHub(Config{BufferSize: 16, PingInterval: 200 * time.Millisecond, WriteTimeout: time.Second}, nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served <- h.Serve(ctx, w, r, "alice")
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	deadline := time.Now().Add(time.Second)
	for h.Subscribers("alice") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	want := trade("alice", "AAPL")
	h.Publish(trade("bob", "MSFT"))
	h.Publish(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ev.Type != "trade" || ev.Transaction.ID != want.ID {
		t.Errorf("event = %+v, want trade %s", ev, want.ID)
	}

	// Control frames are only handled while reading.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	conn.ReadMessage()
	select {
	case <-pinged:
	default:
		t.Error("no keepalive ping received")
	}

	cancel()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after context cancel")
	}
	if h.Subscribers("alice") != 0 {
		t.Errorf("Subscribers() = %d after disconnect, want 0", h.Subscribers("alice"))
	}
}

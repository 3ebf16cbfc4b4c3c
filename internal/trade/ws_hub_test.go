package trade_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stockpit/market-engine/internal/model"
	"github.com/stockpit/market-engine/internal/trade"
)

func dialWS(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

// Dead clients must be evicted during a broadcast sweep without corrupting
// the client map the ping goroutines read concurrently, and the hub must
// keep delivering to live clients afterward. Run with -race.
func TestWSHub_SurvivesDeadClientsDuringBroadcast(t *testing.T) {
	hub := trade.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	// Kill a batch of clients without a close handshake so their next
	// broadcast write fails inside the hub loop.
	for i := 0; i < 8; i++ {
		conn := dialWS(t, srv.URL)
		conn.UnderlyingConn().Close()
	}

	quotes := []model.Quote{{ID: 1, Name: "Stock A", Price: 100}}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hub.BroadcastTick(quotes)
				hub.BroadcastTrade("buy", 1, 1)
			}
		}()
	}
	wg.Wait()

	// A fresh client still receives broadcasts after the evictions.
	conn := dialWS(t, srv.URL)
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.BroadcastTick(quotes)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg trade.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read after evictions: %v", err)
	}
	if msg.Type != "tick" {
		t.Fatalf("expected a tick message, got %q", msg.Type)
	}
	if len(msg.Quotes) != 1 || msg.Quotes[0].Price != 100 {
		t.Fatalf("unexpected tick payload: %+v", msg.Quotes)
	}
}

package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestStream_SubscribeAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var cmd subscribeCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if cmd.Cmd != "subscribe" || len(cmd.Params.MarketTickers) != 1 {
			t.Errorf("unexpected subscribe command: %+v", cmd)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"type": "ticker_v2",
			"msg": map[string]interface{}{
				"market_ticker": cmd.Params.MarketTickers[0],
				"price":         39,
				"yes_bid":       38,
				"yes_ask":       40,
				"volume":        91000,
			},
		})
		_ = conn.WriteMessage(websocket.TextMessage, payload)

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream := NewStream(StreamConfig{
		URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		Logger: zap.NewNop(),
	})
	stream.Subscribe("KXNHLGAME-25NOV01TORBOS-TOR")

	ctx, cancel := context.WithCancel(context.Background())
	stream.Start(ctx)

	select {
	case quote := <-stream.Updates():
		if quote.Ticker != "KXNHLGAME-25NOV01TORBOS-TOR" {
			t.Errorf("ticker = %s", quote.Ticker)
		}
		if quote.LastCents != 39 || quote.YesBidCents != 38 {
			t.Errorf("unexpected quote: %+v", quote)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quote update")
	}

	cancel()
	stream.Close()
}

func TestStream_SubscribeOnLiveConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}

	writeTicker := func(conn *websocket.Conn, ticker string, price int) {
		payload, _ := json.Marshal(map[string]interface{}{
			"type": "ticker_v2",
			"msg": map[string]interface{}{
				"market_ticker": ticker,
				"price":         price,
				"yes_bid":       price - 1,
				"yes_ask":       price + 1,
				"volume":        64000,
			},
		})
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var first subscribeCmd
		if err := conn.ReadJSON(&first); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		writeTicker(conn, first.Params.MarketTickers[0], 41)

		// A ticker added while connected arrives as its own subscribe
		// command, not on a reconnect.
		var second subscribeCmd
		if err := conn.ReadJSON(&second); err != nil {
			t.Errorf("read live subscribe: %v", err)
			return
		}
		if second.Cmd != "subscribe" || len(second.Params.MarketTickers) != 1 ||
			second.Params.MarketTickers[0] != "KXNHLGAME-25NOV02LAKSJS-LAK" {
			t.Errorf("unexpected live subscribe command: %+v", second)
		}
		if second.ID <= first.ID {
			t.Errorf("command id did not advance: first=%d second=%d", first.ID, second.ID)
		}
		writeTicker(conn, second.Params.MarketTickers[0], 36)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream := NewStream(StreamConfig{
		URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		Logger: zap.NewNop(),
	})
	stream.Subscribe("KXNHLGAME-25NOV01TORBOS-TOR")

	ctx, cancel := context.WithCancel(context.Background())
	stream.Start(ctx)

	select {
	case quote := <-stream.Updates():
		if quote.Ticker != "KXNHLGAME-25NOV01TORBOS-TOR" || quote.LastCents != 41 {
			t.Errorf("unexpected first quote: %+v", quote)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the seeded ticker's quote")
	}

	// Already-watched tickers send nothing; the new one goes out live.
	stream.Subscribe("KXNHLGAME-25NOV01TORBOS-TOR", "KXNHLGAME-25NOV02LAKSJS-LAK")

	select {
	case quote := <-stream.Updates():
		if quote.Ticker != "KXNHLGAME-25NOV02LAKSJS-LAK" || quote.LastCents != 36 {
			t.Errorf("unexpected second quote: %+v", quote)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the live-subscribed ticker's quote")
	}

	cancel()
	stream.Close()
}

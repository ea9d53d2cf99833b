package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predictbot/gopredict/internal/domain"
)

func TestParseTicker(t *testing.T) {
	s := NewMarketStream("wss://example.test/ws")

	raw := []byte(`{"type":"ticker","msg":{"market_ticker":"KXBTC-24DEC31","title":"BTC above 100k","yes_bid":48,"yes_ask":50,"volume":12000,"close_ts":"2026-12-31T23:59:59Z"}}`)
	ev, ok := s.parse(raw)
	if !ok {
		t.Fatal("ticker message must parse")
	}
	if ev.Market.ID != "KXBTC-24DEC31" {
		t.Fatalf("market id = %s", ev.Market.ID)
	}
	if ev.Market.YesBid != domain.PriceFromCents(48) || ev.Market.YesAsk != domain.PriceFromCents(50) {
		t.Fatalf("prices = %v/%v", ev.Market.YesBid, ev.Market.YesAsk)
	}
	if ev.Market.Volume != 12000 {
		t.Fatalf("volume = %d", ev.Market.Volume)
	}
	want := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	if !ev.Market.CloseTime.Equal(want) {
		t.Fatalf("close time = %s", ev.Market.CloseTime)
	}
}

func TestParseIgnoresOtherMessages(t *testing.T) {
	s := NewMarketStream("wss://example.test/ws")

	cases := [][]byte{
		[]byte(`{"type":"subscribed","msg":{}}`),
		[]byte(`{"type":"ticker","msg":{"title":"no ticker"}}`),
		[]byte(`not json`),
	}
	for _, raw := range cases {
		if _, ok := s.parse(raw); ok {
			t.Fatalf("message %s must be ignored", raw)
		}
	}
}

func TestParseTolerantOfBadCloseTime(t *testing.T) {
	s := NewMarketStream("wss://example.test/ws")

	raw := []byte(`{"type":"ticker","msg":{"market_ticker":"M1","yes_bid":1,"yes_ask":2,"close_ts":"soon"}}`)
	ev, ok := s.parse(raw)
	if !ok {
		t.Fatal("ticker with bad close_ts must still parse")
	}
	if !ev.Market.CloseTime.IsZero() {
		t.Fatalf("close time = %s, want zero", ev.Market.CloseTime)
	}
}

func TestStopDuringFloodClosesEventsCleanly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := []byte(`{"type":"ticker","msg":{"market_ticker":"KXTEST-1","yes_bid":48,"yes_ask":50,"volume":100}}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewMarketStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 不消费事件：缓冲填满后读循环持续走 send 分支，此时 Stop
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	// 通道由读循环关闭；这里只管排空直到关闭
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after stop")
		}
	}
}

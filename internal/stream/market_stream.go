// Package stream 维护行情 WebSocket 连接，把 ticker 推送转成
// domain.MarketEvent，作为 pipeline cycle 的触发源。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/pkg/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 10 * time.Second
	pongWait         = 30 * time.Second
	maxReconnectWait = time.Minute
	eventBufferSize  = 64
)

// MarketStream 行情事件源
type MarketStream struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu         sync.RWMutex
	subscriptions map[string]bool // ticker -> 已订阅

	runningMu sync.RWMutex
	running   bool

	eventC chan domain.MarketEvent
	stopCh chan struct{}
	doneCh chan struct{}

	log *logrus.Entry
}

// NewMarketStream 创建行情流客户端
func NewMarketStream(url string) *MarketStream {
	return &MarketStream{
		url:           url,
		subscriptions: make(map[string]bool),
		eventC:        make(chan domain.MarketEvent, eventBufferSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		log:           logger.WithComponent("stream"),
	}
}

// Events 行情事件通道（orchestrator 的 trigger 输入）
func (s *MarketStream) Events() <-chan domain.MarketEvent {
	return s.eventC
}

// Start 连接并开始读取。断连后指数退避自动重连。
func (s *MarketStream) Start(ctx context.Context) error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("stream: already running")
	}
	s.running = true
	s.runningMu.Unlock()

	if err := s.connect(); err != nil {
		s.runningMu.Lock()
		s.running = false
		s.runningMu.Unlock()
		return err
	}

	go s.readLoop(ctx)
	s.log.Infof("connected to %s", s.url)
	return nil
}

// Stop 关闭连接并等待读循环退出
func (s *MarketStream) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	close(s.stopCh)
	s.closeConn()

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.log.Warn("stop timed out")
	}
	s.log.Info("stopped")
}

// Subscribe 订阅市场 ticker；重连后自动重放
func (s *MarketStream) Subscribe(tickers ...string) error {
	s.subMu.Lock()
	var added []string
	for _, t := range tickers {
		if !s.subscriptions[t] {
			s.subscriptions[t] = true
			added = append(added, t)
		}
	}
	s.subMu.Unlock()

	if len(added) == 0 {
		return nil
	}
	return s.sendSubscribe(added)
}

func (s *MarketStream) isRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

func (s *MarketStream) connect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", s.url, err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	s.conn = conn
	return nil
}

func (s *MarketStream) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
}

type subscribeCmd struct {
	ID     int                 `json:"id"`
	Cmd    string              `json:"cmd"`
	Params map[string][]string `json:"params"`
}

func (s *MarketStream) sendSubscribe(tickers []string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream: not connected")
	}
	return s.conn.WriteJSON(subscribeCmd{
		ID:  1,
		Cmd: "subscribe",
		Params: map[string][]string{
			"channels":       {"ticker"},
			"market_tickers": tickers,
		},
	})
}

// resubscribe 重连后重放全部订阅
func (s *MarketStream) resubscribe() {
	s.subMu.RLock()
	tickers := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		tickers = append(tickers, t)
	}
	s.subMu.RUnlock()

	if len(tickers) > 0 {
		if err := s.sendSubscribe(tickers); err != nil {
			s.log.WithError(err).Warn("resubscribe failed")
		}
	}
}

func (s *MarketStream) readLoop(ctx context.Context) {
	// eventC 只能由读循环这一侧关闭，否则会与进行中的 send 竞争
	defer close(s.doneCh)
	defer close(s.eventC)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				s.connMu.Lock()
				if s.conn != nil {
					s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				}
				s.connMu.Unlock()
			}
		}
	}()

	backoff := time.Second
	for s.isRunning() && ctx.Err() == nil {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !s.isRunning() || ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Warnf("read failed, reconnecting in %s", backoff)
			select {
			case <-time.After(backoff):
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
			if err := s.connect(); err != nil {
				s.log.WithError(err).Warn("reconnect failed")
				continue
			}
			s.resubscribe()
			continue
		}
		backoff = time.Second

		if ev, ok := s.parse(raw); ok {
			select {
			case s.eventC <- ev:
			default:
				// 消费侧落后时丢弃当前 tick，下一条会带来更新的快照
				s.log.Warn("event buffer full, dropping tick")
			}
		}
	}
}

type tickerMessage struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		Title        string `json:"title"`
		YesBid       int    `json:"yes_bid"`
		YesAsk       int    `json:"yes_ask"`
		Volume       int64  `json:"volume"`
		CloseTime    string `json:"close_ts"`
	} `json:"msg"`
}

// parse 只认 ticker 推送，其余消息类型忽略
func (s *MarketStream) parse(raw []byte) (domain.MarketEvent, bool) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ticker" {
		return domain.MarketEvent{}, false
	}
	if msg.Msg.MarketTicker == "" {
		return domain.MarketEvent{}, false
	}

	market := domain.Market{
		ID:     msg.Msg.MarketTicker,
		Title:  msg.Msg.Title,
		YesBid: domain.PriceFromCents(msg.Msg.YesBid),
		YesAsk: domain.PriceFromCents(msg.Msg.YesAsk),
		Volume: msg.Msg.Volume,
	}
	if ts, err := time.Parse(time.RFC3339, msg.Msg.CloseTime); err == nil {
		market.CloseTime = ts
	}
	return domain.MarketEvent{Market: market, Timestamp: time.Now()}, true
}

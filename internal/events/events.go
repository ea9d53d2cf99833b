package events

import (
	"sync"
	"time"

	"github.com/predictbot/gopredict/internal/domain"
)

// CycleStartedEvent 一次 pipeline cycle 开始
type CycleStartedEvent struct {
	MarketID  string
	Timestamp time.Time
}

// CycleCompletedEvent cycle 正常结束（含 hold 信号的情况）
type CycleCompletedEvent struct {
	MarketID  string
	Signal    domain.BetSignal
	OrderID   string // 未下单时为空
	Duration  time.Duration
	Timestamp time.Time
}

// CycleFailedEvent cycle 因某阶段失败而关闭（fail-closed，不下单）
type CycleFailedEvent struct {
	MarketID  string
	Stage     string
	Error     string
	Timestamp time.Time
}

// SignalGeneratedEvent 信号生成事件
type SignalGeneratedEvent struct {
	Signal    domain.BetSignal
	Timestamp time.Time
}

// OrderPlacedEvent 订单提交成功事件
type OrderPlacedEvent struct {
	OrderID   string
	Order     domain.BetOrder
	Timestamp time.Time
}

// Bus 进程内事件总线。Publish 同步调用全部订阅者，
// 订阅者不得阻塞（长任务自行起 goroutine）。
type Bus struct {
	mu       sync.RWMutex
	handlers []func(event interface{})
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 注册订阅者
func (b *Bus) Subscribe(fn func(event interface{})) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

// Publish 广播事件
func (b *Bus) Publish(event interface{}) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(event)
	}
}

package orchestrator

import (
	"sync"
	"time"

	"github.com/predictbot/gopredict/internal/domain"
)

// Catalog 已知市场目录。摄取层每次事件都会刷新对应市场，
// 执行引擎用它拒绝对从未见过的市场下单。
type Catalog struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

func NewCatalog() *Catalog {
	return &Catalog{markets: make(map[string]domain.Market)}
}

// Put 写入/刷新市场快照
func (c *Catalog) Put(m domain.Market) {
	if m.ID == "" {
		return
	}
	c.mu.Lock()
	c.markets[m.ID] = m
	c.mu.Unlock()
}

// Known 市场是否出现过
func (c *Catalog) Known(marketID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.markets[marketID]
	return ok
}

// Get 返回市场快照
func (c *Catalog) Get(marketID string) (domain.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[marketID]
	return m, ok
}

// Open 返回给定时间仍可交易的市场列表
func (c *Catalog) Open(now time.Time) []domain.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Market
	for _, m := range c.markets {
		if m.IsOpen(now) {
			out = append(out, m)
		}
	}
	return out
}

package domain

import "time"

// Market 市场领域模型（Kalshi event market）
type Market struct {
	ID        string    // 市场 ticker（如 "KXBTC-24DEC31"）
	Title     string    // 问题描述
	StartDate time.Time // 开盘时间
	CloseTime time.Time // 截止时间
	YesBid    Price     // 当前 yes 买价
	YesAsk    Price     // 当前 yes 卖价
	Volume    int64     // 成交量
}

// IsValid 验证市场是否有效
func (m *Market) IsValid() bool {
	return m.ID != "" && !m.CloseTime.IsZero()
}

// IsOpen 检查市场在给定时间是否仍可交易
func (m *Market) IsOpen(now time.Time) bool {
	return now.Before(m.CloseTime)
}

// MarketEvent 原始市场事件（数据摄取层产出，触发一次 pipeline cycle）
type MarketEvent struct {
	Market    Market
	News      []string  // 关联的新闻/上下文片段
	Timestamp time.Time // 事件到达时间
}

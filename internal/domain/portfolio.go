package domain

import "github.com/shopspring/decimal"

// Position 持仓条目（来自 gateway 的只读视图）
type Position struct {
	MarketID string
	Side     Side
	Quantity int64           // 合约张数
	AvgPrice Price           // 平均成本
	Value    decimal.Decimal // 当前市值（美元）
}

// PortfolioSnapshot 组合快照。
// 由 ExecutionEngine + gateway 状态推导出的只读视图，核心不独立持久化
// （账户系统才是 source of record）。
type PortfolioSnapshot struct {
	Cash       decimal.Decimal // 可用现金（美元）
	TotalValue decimal.Decimal // 总市值（美元）
	Positions  []Position
}

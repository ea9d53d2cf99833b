package domain

import "time"

// Side 下注方向（yes/no 合约）
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderType 订单类型（限价/市价）
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// BetOrder 下注订单（由 BetSignal 转换而来，提交后归 ExecutionEngine 所有）
type BetOrder struct {
	MarketID  string    // 市场 ticker
	Side      Side      // yes / no
	Amount    float64   // 下注金额（美元），必须 > 0
	Price     Price     // 限价，必须在 (0,1) 内
	OrderType OrderType // 订单类型（默认 limit）
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsTerminal 检查状态是否为终态（终态不允许被中间状态覆盖）
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRecord 订单生命周期记录。
// 提交时创建（status=pending），此后只由 ExecutionEngine 在状态轮询/撤单时修改，
// 终态确认后归档。
type OrderRecord struct {
	OrderID      string      // 本地订单 ID
	GatewayID    string      // 交易所侧订单 ID
	Order        BetOrder    // 原始订单
	Status       OrderStatus // 当前状态
	FilledAmount float64     // 已成交金额
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsCancelable 检查订单是否处于可撤销状态
func (r *OrderRecord) IsCancelable() bool {
	return r.Status == OrderStatusPending || r.Status == OrderStatusPartiallyFilled
}

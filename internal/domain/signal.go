package domain

// SignalKind 交易信号类型
type SignalKind string

const (
	SignalBuyYes SignalKind = "buy_yes"
	SignalBuyNo  SignalKind = "buy_no"
	SignalHold   SignalKind = "hold"
)

// BetSignal 下注信号（信号生成阶段产出，被订单转换消费且只消费一次）
type BetSignal struct {
	MarketID        string     // 市场 ticker
	Signal          SignalKind // buy_yes / buy_no / hold
	Confidence      float64    // 置信度，[0,1]
	ExpectedValue   float64    // 预期价值（prediction - market price）
	RecommendedSize float64    // 建议下注金额（美元），>= 0
}

// IsActionable 检查信号是否需要下单（hold 或零头寸直接跳过）
func (s BetSignal) IsActionable() bool {
	return s.Signal != SignalHold && s.RecommendedSize > 0
}

// OrderSide 将信号方向映射到订单方向。
// hold 信号没有方向，调用前必须先检查 IsActionable。
func (s BetSignal) OrderSide() Side {
	if s.Signal == SignalBuyNo {
		return SideNo
	}
	return SideYes
}

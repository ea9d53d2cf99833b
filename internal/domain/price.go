package domain

import "math"

// Price 价格值对象（固定精度：1e-4）
//
// 预测市场的合约价格始终落在 (0,1) 区间（隐含概率）。
// 为了让信号/执行层不丢精度，这里使用 1e-4 作为内部最小单位（pips）：
//   - 1 pip  = 0.0001
//   - 100 pips = 0.01（Kalshi 的 1 cent）
//   - 10000 pips = 1.0
type Price struct {
	// Pips: 价格 * 10000（合法范围 1..9999）
	Pips int
}

// PriceFromDecimal 从小数创建价格（四舍五入到 1e-4）
func PriceFromDecimal(decimal float64) Price {
	return Price{Pips: int(math.Round(decimal * 10000))}
}

// PriceFromCents 从“分”创建价格（Kalshi 报价口径）
func PriceFromCents(cents int) Price {
	return Price{Pips: cents * 100}
}

// ToDecimal 转换为小数（例如 7500 pips = 0.7500）
func (p Price) ToDecimal() float64 {
	return float64(p.Pips) / 10000.0
}

// ToCents 返回“分（0.01）口径”的整数（Kalshi API 使用 cents）
func (p Price) ToCents() int {
	return int(math.Round(float64(p.Pips) / 100.0))
}

// IsTradable 检查价格是否在可交易区间 (0,1) 内
func (p Price) IsTradable() bool {
	return p.Pips > 0 && p.Pips < 10000
}

// Complement 返回对侧价格（1 - p），用于 yes/no 互换
func (p Price) Complement() Price {
	return Price{Pips: 10000 - p.Pips}
}

// LessThan 检查是否小于
func (p Price) LessThan(other Price) bool {
	return p.Pips < other.Pips
}

// GreaterThan 检查是否大于
func (p Price) GreaterThan(other Price) bool {
	return p.Pips > other.Pips
}

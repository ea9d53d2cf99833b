package stages

import "math"

// SizingPolicy 头寸规模策略。输入模型胜率、市场价与可用资金，
// 输出下注金额（美元）。返回 0 表示放弃该信号。
type SizingPolicy interface {
	Size(winProbability, marketPrice, bankroll float64) float64
}

// KellyPolicy 分数 Kelly 策略。
//
// 对价格 p 买入 yes 合约，赔率 b = (1-p)/p，
// 全 Kelly 比例 f* = (b*q - (1-q)) / b，下注额 = f* * Fraction * bankroll。
// 负边际（q <= p）直接归零。
type KellyPolicy struct {
	Fraction     float64 // 分数系数，(0,1]
	BetSizeLimit float64 // 单笔上限（美元），0 表示不封顶
}

func (k KellyPolicy) Size(winProbability, marketPrice, bankroll float64) float64 {
	if winProbability <= 0 || winProbability >= 1 {
		return 0
	}
	if marketPrice <= 0 || marketPrice >= 1 {
		return 0
	}
	if bankroll <= 0 {
		return 0
	}

	b := (1 - marketPrice) / marketPrice
	f := (b*winProbability - (1 - winProbability)) / b
	if f <= 0 {
		return 0
	}

	frac := k.Fraction
	if frac <= 0 || frac > 1 {
		frac = 1
	}
	size := f * frac * bankroll
	if k.BetSizeLimit > 0 {
		size = math.Min(size, k.BetSizeLimit)
	}
	return size
}

// FixedPolicy 固定下注额策略（回测/干跑用）
type FixedPolicy struct {
	Amount float64
}

func (p FixedPolicy) Size(winProbability, marketPrice, bankroll float64) float64 {
	if winProbability <= marketPrice {
		return 0
	}
	return math.Min(p.Amount, bankroll)
}

package execution

import (
	"fmt"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/pkg/config"
)

// RejectedError 订单校验失败。校验失败不创建 OrderRecord，
// 不重试，原因原样回传给信号层。
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "order rejected: " + e.Reason
}

func reject(format string, args ...interface{}) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// Exposure 校验时刻的在途敞口快照（美元）
type Exposure struct {
	Market    float64 // 该市场未终态订单金额之和
	Portfolio float64 // 全部未终态订单金额之和
}

// ValidateOrder 纯函数订单校验。不触网、不改状态，
// 通过返回 nil，失败返回 *RejectedError。
func ValidateOrder(order domain.BetOrder, risk config.RiskConfig, knownMarket bool, exp Exposure) error {
	if order.MarketID == "" {
		return reject("empty market id")
	}
	if !knownMarket {
		return reject("unknown market %q", order.MarketID)
	}
	if order.Side != domain.SideYes && order.Side != domain.SideNo {
		return reject("invalid side %q", order.Side)
	}
	if order.Amount <= 0 {
		return reject("amount %.2f must be positive", order.Amount)
	}
	if order.Amount > risk.BetSizeLimit {
		return reject("amount %.2f exceeds bet size limit %.2f", order.Amount, risk.BetSizeLimit)
	}
	if !order.Price.IsTradable() {
		return reject("price %.4f outside (0,1)", order.Price.ToDecimal())
	}
	if risk.MaxMarketExposure > 0 && exp.Market+order.Amount > risk.MaxMarketExposure {
		return reject("market exposure %.2f+%.2f exceeds limit %.2f",
			exp.Market, order.Amount, risk.MaxMarketExposure)
	}
	if risk.MaxPortfolioExposure > 0 && exp.Portfolio+order.Amount > risk.MaxPortfolioExposure {
		return reject("portfolio exposure %.2f+%.2f exceeds limit %.2f",
			exp.Portfolio, order.Amount, risk.MaxPortfolioExposure)
	}
	return nil
}

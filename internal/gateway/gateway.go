// Package gateway defines the execution-gateway collaborator boundary.
// The engine treats implementations as opaque signed-REST clients.
package gateway

import (
	"context"

	"github.com/predictbot/gopredict/internal/domain"
)

// StatusReport 交易所侧订单状态
type StatusReport struct {
	Status       domain.OrderStatus
	FilledAmount float64
}

// Gateway Execution-Gateway collaborator 接口
type Gateway interface {
	// Submit 签名并提交订单，返回交易所侧订单 ID
	Submit(ctx context.Context, order domain.BetOrder) (string, error)
	// Status 查询订单状态
	Status(ctx context.Context, gatewayID string) (StatusReport, error)
	// Cancel 撤单（交易所侧已终态时应返回 nil）
	Cancel(ctx context.Context, gatewayID string) error
	// Balance 查询账户余额
	Balance(ctx context.Context) (domain.PortfolioSnapshot, error)
}

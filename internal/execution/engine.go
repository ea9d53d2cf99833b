package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/gateway"
	"github.com/predictbot/gopredict/pkg/cache"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
)

// ErrUnknownOrder 查询了从未存在过的订单
var ErrUnknownOrder = errors.New("unknown order")

// ErrInvalidTransition 对从未存在过的订单做撤单等状态转移
var ErrInvalidTransition = errors.New("invalid order state transition")

// MarketCatalog 已知市场判定（由 orchestrator 的市场快照提供）
type MarketCatalog interface {
	Known(marketID string) bool
}

// Engine 订单执行引擎。
//
// 职责：
// - PlaceOrder：校验并预留敞口（原子）→ 签名提交 → 建 OrderRecord
// - 同一 (marketID, side) 的 validate+submit 串行化，杜绝重复下单；
//   跨市场的并发提交靠敞口预留保证组合上限不被击穿
// - 状态机：pending → {filled, partially_filled, cancelled, rejected}，
//   终态不允许被中间状态覆盖
//
// 内存 map 是运行时真相；sqlite 归档只做审计与重启恢复。
type Engine struct {
	gw      gateway.Gateway
	risk    config.RiskConfig
	catalog MarketCatalog
	archive *OrderStore // 可为 nil（测试/干跑）

	locks    *submissionLock
	balances *cache.InMemoryCache[string, domain.PortfolioSnapshot]

	mu      sync.RWMutex
	records map[string]*domain.OrderRecord
	pending map[string]float64 // marketID -> 已通过校验、尚未生成记录的预留金额

	log *logrus.Entry
}

// balanceTTL 余额快照缓存时长。并发 cycle 共享一次余额查询，
// 过期后才重新触网。
const balanceTTL = 5 * time.Second

// NewEngine 创建执行引擎。archive 传 nil 时不落盘。
func NewEngine(gw gateway.Gateway, risk config.RiskConfig, catalog MarketCatalog, archive *OrderStore) *Engine {
	return &Engine{
		gw:       gw,
		risk:     risk,
		catalog:  catalog,
		archive:  archive,
		locks:    newSubmissionLock(64),
		balances: cache.NewInMemoryCache[string, domain.PortfolioSnapshot](balanceTTL),
		records:  make(map[string]*domain.OrderRecord),
		pending:  make(map[string]float64),
		log:      logger.WithComponent("execution"),
	}
}

// Restore 从归档恢复未终态订单到内存（进程重启后调用一次）
func (e *Engine) Restore(ctx context.Context) error {
	if e.archive == nil {
		return nil
	}
	open, err := e.archive.ListOpen(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	for _, r := range open {
		e.records[r.OrderID] = r
	}
	e.mu.Unlock()
	if len(open) > 0 {
		e.log.Infof("restored %d open orders from archive", len(open))
	}
	return nil
}

// exposureLocked 计算当前在途敞口：未终态订单的未成交部分，
// 加上已通过校验但尚未生成记录的预留金额。调用方须持有 e.mu。
func (e *Engine) exposureLocked(marketID string) Exposure {
	var exp Exposure
	for _, r := range e.records {
		if r.Status.IsTerminal() {
			continue
		}
		remaining := r.Order.Amount - r.FilledAmount
		if remaining < 0 {
			remaining = 0
		}
		exp.Portfolio += remaining
		if r.Order.MarketID == marketID {
			exp.Market += remaining
		}
	}
	for id, amount := range e.pending {
		exp.Portfolio += amount
		if id == marketID {
			exp.Market += amount
		}
	}
	return exp
}

// reserveExposure 校验并原子预留敞口，杜绝并发校验读到同一份旧敞口。
// 预留在记录落表或提交失败时释放。
func (e *Engine) reserveExposure(order domain.BetOrder, known bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ValidateOrder(order, e.risk, known, e.exposureLocked(order.MarketID)); err != nil {
		return err
	}
	e.pending[order.MarketID] += order.Amount
	return nil
}

func (e *Engine) releaseExposureLocked(order domain.BetOrder) {
	if e.pending[order.MarketID] -= order.Amount; e.pending[order.MarketID] <= 0 {
		delete(e.pending, order.MarketID)
	}
}

func submissionKey(order domain.BetOrder) string {
	return order.MarketID + "/" + string(order.Side)
}

// PlaceOrder 校验并提交订单，返回本地订单 ID。
// 校验失败返回 *RejectedError 且不创建任何记录。
// 提交阶段不可被调用方取消（订单一旦上行，取消也无法撤回电文）。
func (e *Engine) PlaceOrder(ctx context.Context, order domain.BetOrder) (string, error) {
	if order.OrderType == "" {
		order.OrderType = domain.OrderTypeLimit
	}

	key := submissionKey(order)
	if err := e.locks.Acquire(ctx, key); err != nil {
		return "", err
	}
	defer e.locks.Release(key)

	known := e.catalog == nil || e.catalog.Known(order.MarketID)
	if err := e.reserveExposure(order, known); err != nil {
		e.log.WithField("market", order.MarketID).Warnf("order rejected: %v", err)
		return "", err
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	gatewayID, err := e.gw.Submit(submitCtx, order)
	if err != nil {
		e.mu.Lock()
		e.releaseExposureLocked(order)
		e.mu.Unlock()
		return "", err
	}

	now := time.Now()
	record := &domain.OrderRecord{
		OrderID:   uuid.NewString(),
		GatewayID: gatewayID,
		Order:     order,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 预留转正：同一临界区内释放 pending 并落表，敞口总量不回落
	e.mu.Lock()
	e.releaseExposureLocked(order)
	e.records[record.OrderID] = record
	e.mu.Unlock()

	if e.archive != nil {
		if err := e.archive.Insert(context.WithoutCancel(ctx), record); err != nil {
			e.log.Errorf("archive insert %s: %v", record.OrderID, err)
		}
	}

	e.log.WithFields(logrus.Fields{
		"market": order.MarketID,
		"side":   order.Side,
		"order":  record.OrderID,
	}).Infof("order placed amount=%.2f price=%.4f", order.Amount, order.Price.ToDecimal())
	return record.OrderID, nil
}

// GetOrderStatus 轮询交易所并同步本地记录。
// 本地已是终态时直接返回，不再触网。
func (e *Engine) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	e.mu.RLock()
	record, ok := e.records[orderID]
	var status domain.OrderStatus
	var gatewayID string
	if ok {
		status = record.Status
		gatewayID = record.GatewayID
	}
	e.mu.RUnlock()
	if !ok {
		return "", ErrUnknownOrder
	}

	if status.IsTerminal() {
		return status, nil
	}

	report, err := e.gw.Status(ctx, gatewayID)
	if err != nil {
		return status, err
	}
	snapshot := e.apply(ctx, record, report.Status, report.FilledAmount)
	return snapshot.Status, nil
}

// CancelOrder 撤单。
// - pending / partially_filled：发给交易所并置 cancelled
// - 已终态：幂等返回 nil
// - 从未存在：ErrInvalidTransition
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.RLock()
	record, ok := e.records[orderID]
	var cancelable bool
	var gatewayID string
	var filled float64
	if ok {
		cancelable = record.IsCancelable()
		gatewayID = record.GatewayID
		filled = record.FilledAmount
	}
	e.mu.RUnlock()
	if !ok {
		return ErrInvalidTransition
	}
	if !cancelable {
		return nil
	}

	if err := e.gw.Cancel(ctx, gatewayID); err != nil {
		return err
	}
	e.apply(ctx, record, domain.OrderStatusCancelled, filled)
	e.log.WithField("order", orderID).Info("order cancelled")
	return nil
}

// GetPortfolioBalance 读余额，不改任何记录。
// 快照短暂缓存，避免并发 cycle 把余额接口打穿。
func (e *Engine) GetPortfolioBalance(ctx context.Context) (domain.PortfolioSnapshot, error) {
	if snap, ok := e.balances.Get("portfolio"); ok {
		return snap, nil
	}
	snap, err := e.gw.Balance(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	e.balances.Set("portfolio", snap, balanceTTL)
	return snap, nil
}

// apply 写入状态转移并返回转移后的快照。终态只进不出。
// 调用方读快照而不是回读共享记录，记录本体只在 e.mu 内被触碰。
func (e *Engine) apply(ctx context.Context, record *domain.OrderRecord, status domain.OrderStatus, filled float64) domain.OrderRecord {
	e.mu.Lock()
	if record.Status.IsTerminal() {
		snapshot := *record
		e.mu.Unlock()
		return snapshot
	}
	record.Status = status
	if filled > record.FilledAmount {
		record.FilledAmount = filled
	}
	record.UpdatedAt = time.Now()
	snapshot := *record
	e.mu.Unlock()

	if e.archive != nil {
		if err := e.archive.UpdateStatus(context.WithoutCancel(ctx),
			snapshot.OrderID, snapshot.Status, snapshot.FilledAmount, snapshot.UpdatedAt); err != nil {
			e.log.Errorf("archive update %s: %v", snapshot.OrderID, err)
		}
	}
	return snapshot
}

// Record 返回记录的副本（监控面板用）
func (e *Engine) Record(orderID string) (domain.OrderRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.records[orderID]
	if !ok {
		return domain.OrderRecord{}, false
	}
	return *r, true
}

// OpenOrders 返回全部未终态记录的副本
func (e *Engine) OpenOrders() []domain.OrderRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.OrderRecord
	for _, r := range e.records {
		if !r.Status.IsTerminal() {
			out = append(out, *r)
		}
	}
	return out
}

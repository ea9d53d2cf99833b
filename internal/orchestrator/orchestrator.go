// Package orchestrator 驱动 pipeline：等待行情事件，
// 串接 清洗 → 特征 → 入库 → 选型/训练 → 信号 → 执行，
// 任一阶段失败即关闭该 cycle（fail-closed，不下单）。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/events"
	"github.com/predictbot/gopredict/internal/execution"
	"github.com/predictbot/gopredict/internal/faults"
	"github.com/predictbot/gopredict/internal/featurestore"
	"github.com/predictbot/gopredict/internal/stages"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/syncgroup"
)

// stageChain pipeline 阶段执行顺序（注册表 key）
var stageChain = []string{
	"data_cleaning",
	"feature_engineering",
	"model_selection",
	"model_training",
	"bet_signal",
}

// similarBatchLimit 历史相似批次检索条数
const similarBatchLimit = 5

// Orchestrator MasterOrchestrator：注册表 + 事件驱动的 run loop。
// 独立市场并发处理（上限 MaxConcurrentMarkets），
// 同一市场同方向的提交由执行引擎串行化。
type Orchestrator struct {
	registry *Registry
	catalog  *Catalog
	store    *featurestore.Store
	engine   *execution.Engine
	bus      *events.Bus
	cfg      config.RuntimeConfig

	group *syncgroup.Group
	sem   chan struct{}
	log   *logrus.Entry
}

// New 创建 orchestrator。bus 传 nil 时事件不广播。
func New(registry *Registry, catalog *Catalog, store *featurestore.Store,
	engine *execution.Engine, bus *events.Bus, cfg config.RuntimeConfig) *Orchestrator {
	if cfg.MaxConcurrentMarkets <= 0 {
		cfg.MaxConcurrentMarkets = 1
	}
	return &Orchestrator{
		registry: registry,
		catalog:  catalog,
		store:    store,
		engine:   engine,
		bus:      bus,
		cfg:      cfg,
		group:    syncgroup.NewGroup(),
		sem:      make(chan struct{}, cfg.MaxConcurrentMarkets),
		log:      logger.WithComponent("orchestrator"),
	}
}

// Run 消费行情事件直到 ctx 取消或 trigger 关闭。
// 每个事件一个 cycle，独立市场并发执行。
func (o *Orchestrator) Run(ctx context.Context, trigger <-chan domain.MarketEvent) error {
	// 启动前检查全部阶段已注册
	for _, name := range stageChain {
		if _, ok := o.registry.Get(name); !ok {
			return fmt.Errorf("orchestrator: stage %q not registered", name)
		}
	}

	o.registry.StartAll()
	defer o.registry.StopAll()
	o.log.Infof("run loop started, max %d concurrent markets", o.cfg.MaxConcurrentMarkets)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-trigger:
			if !ok {
				return nil
			}
			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			started := o.group.Go(func() {
				defer func() { <-o.sem }()
				o.runCycle(ctx, ev)
			})
			if !started {
				<-o.sem
				return nil
			}
		}
	}
}

// Stop 等待全部 in-flight cycle 结束（不打断进行中的提交）
func (o *Orchestrator) Stop() {
	o.group.StopAndWait()
	o.log.Info("all cycles drained")
}

// Statuses 全部 agent 的健康快照
func (o *Orchestrator) Statuses() []agent.Status {
	return o.registry.Statuses()
}

// runCycle 对单个市场事件执行完整 pipeline
func (o *Orchestrator) runCycle(ctx context.Context, ev domain.MarketEvent) {
	start := time.Now()
	market := ev.Market
	o.catalog.Put(market)
	o.publish(events.CycleStartedEvent{MarketID: market.ID, Timestamp: start})

	log := o.log.WithField("market", market.ID)

	payload, err := o.initialPayload(ctx, ev)
	if err != nil {
		o.failCycle(log, market.ID, "ingestion", err)
		return
	}

	for _, name := range stageChain {
		runner, _ := o.registry.Get(name)
		payload, err = o.runStage(ctx, runner, payload)
		if err != nil {
			o.failCycle(log, market.ID, name, err)
			return
		}
		if name == "feature_engineering" {
			payload, err = o.persistFeatures(ctx, payload)
			if err != nil {
				o.failCycle(log, market.ID, "feature_store", err)
				return
			}
		}
	}

	signal, ok := payload["signal"].(domain.BetSignal)
	if !ok {
		o.failCycle(log, market.ID, "bet_signal", fmt.Errorf("stage produced no signal"))
		return
	}
	o.publish(events.SignalGeneratedEvent{Signal: signal, Timestamp: time.Now()})

	var orderID string
	if signal.IsActionable() {
		order := stages.ToOrder(signal, market)
		orderID, err = o.engine.PlaceOrder(ctx, order)
		if err != nil {
			var rejected *execution.RejectedError
			if errors.As(err, &rejected) {
				log.Warnf("signal rejected by risk gate: %s", rejected.Reason)
			}
			o.failCycle(log, market.ID, "execution", err)
			return
		}
		o.publish(events.OrderPlacedEvent{OrderID: orderID, Order: order, Timestamp: time.Now()})
	}

	o.publish(events.CycleCompletedEvent{
		MarketID:  market.ID,
		Signal:    signal,
		OrderID:   orderID,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	log.Infof("cycle completed signal=%s order=%q in %s", signal.Signal, orderID, time.Since(start))
}

// runStage 带超时与瞬时错误重试执行单个阶段。
// 校验类错误不重试，直接失败。
func (o *Orchestrator) runStage(ctx context.Context, runner agent.Runner, input agent.Payload) (agent.Payload, error) {
	var out agent.Payload
	err := faults.Retry(ctx, o.cfg.RetryAttempts, o.cfg.RetryDelay, func() error {
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
		var err error
		out, err = runner.Process(stageCtx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", runner.Name(), err)
	}
	return out, nil
}

// initialPayload 从行情事件与账户余额构造首个阶段输入
func (o *Orchestrator) initialPayload(ctx context.Context, ev domain.MarketEvent) (agent.Payload, error) {
	snapshot, err := o.engine.GetPortfolioBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio balance: %w", err)
	}
	bankroll, _ := snapshot.Cash.Float64()

	market := ev.Market
	return agent.Payload{
		"market_id": market.ID,
		"market":    market,
		"market_data": fmt.Sprintf("ticker=%s title=%q yes_bid=%.4f yes_ask=%.4f volume=%d close=%s",
			market.ID, market.Title, market.YesBid.ToDecimal(), market.YesAsk.ToDecimal(),
			market.Volume, market.CloseTime.Format(time.RFC3339)),
		"price_data":  []float64{market.YesBid.ToDecimal(), market.YesAsk.ToDecimal()},
		"volume_data": []int64{market.Volume},
		"news_data":   strings.Join(ev.News, "\n"),
		"bankroll":    bankroll,
	}, nil
}

// persistFeatures 特征入库并取回历史上下文
func (o *Orchestrator) persistFeatures(ctx context.Context, payload agent.Payload) (agent.Payload, error) {
	batch, ok := payload["features"].(domain.FeatureBatch)
	if !ok {
		return nil, fmt.Errorf("stage produced no features")
	}

	batchID, err := o.store.Store(ctx, batch)
	if err != nil {
		return nil, err
	}
	batch.BatchID = batchID

	similar, err := o.store.Retrieve(ctx, batch.Vector, similarBatchLimit)
	if err != nil {
		return nil, err
	}
	recent, err := o.store.GetLatest(ctx, batch.MarketID, o.cfg.FeatureWindow)
	if err != nil {
		return nil, err
	}

	payload["features"] = batch
	payload["similar_batches"] = similar
	payload["recent_batches"] = recent
	return payload, nil
}

func (o *Orchestrator) failCycle(log *logrus.Entry, marketID, stage string, err error) {
	log.WithError(err).Errorf("cycle failed at %s, no order placed", stage)
	o.publish(events.CycleFailedEvent{
		MarketID:  marketID,
		Stage:     stage,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) publish(event interface{}) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

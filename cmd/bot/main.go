package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/internal/events"
	"github.com/predictbot/gopredict/internal/execution"
	"github.com/predictbot/gopredict/internal/featurestore"
	"github.com/predictbot/gopredict/internal/gateway"
	"github.com/predictbot/gopredict/internal/gateway/kalshi"
	"github.com/predictbot/gopredict/internal/gateway/polymarket"
	"github.com/predictbot/gopredict/internal/monitor"
	"github.com/predictbot/gopredict/internal/orchestrator"
	"github.com/predictbot/gopredict/internal/stages"
	"github.com/predictbot/gopredict/internal/stream"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/persistence"
	"github.com/predictbot/gopredict/pkg/shutdown"
)

func buildGateway(name string, cfg *config.Settings) (gateway.Gateway, error) {
	switch name {
	case "kalshi":
		return kalshi.NewClient(cfg.Kalshi)
	case "polymarket":
		wallet, err := cfg.Poly.ResolveWallet()
		if err != nil {
			return nil, err
		}
		return polymarket.NewClient(cfg.Poly, wallet)
	default:
		return nil, fmt.Errorf("unknown gateway %q", name)
	}
}

func buildAgents(ctx context.Context, cfg *config.Settings, registry *orchestrator.Registry) error {
	invoker, err := capability.NewChatModelInvoker(ctx, cfg.Model)
	if err != nil {
		return err
	}
	// agent 状态快照跨重启保留（处理计数、最近错误）
	snapshots := persistence.NewJSONFileService(cfg.Store.DataDir)

	cleaning, err := stages.NewDataCleaning(invoker)
	if err != nil {
		return err
	}
	features, err := stages.NewFeatureEngineering(invoker)
	if err != nil {
		return err
	}
	selection, err := stages.NewModelSelection(invoker)
	if err != nil {
		return err
	}
	training, err := stages.NewModelTraining(invoker)
	if err != nil {
		return err
	}
	signals, err := stages.NewBetSignal(invoker, cfg.Risk, nil)
	if err != nil {
		return err
	}

	for _, runner := range []interface {
		BindStateStore(persistence.Service)
	}{cleaning, features, selection, training, signals} {
		runner.BindStateStore(snapshots)
	}

	if err := registry.Register(cleaning); err != nil {
		return err
	}
	if err := registry.Register(features); err != nil {
		return err
	}
	if err := registry.Register(selection); err != nil {
		return err
	}
	if err := registry.Register(training); err != nil {
		return err
	}
	return registry.Register(signals)
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml）")
	gatewayName := flag.String("gateway", "kalshi", "执行网关：kalshi 或 polymarket")
	tickers := flag.String("markets", "", "订阅的市场 ticker（逗号分隔）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 特征库
	store, err := featurestore.Open(cfg.Store.FeatureDBDir)
	if err != nil {
		log.WithError(err).Fatal("打开特征库失败")
	}

	// 订单归档 + 执行引擎
	archive, err := execution.OpenOrderStore(cfg.Store.OrderDBPath)
	if err != nil {
		log.WithError(err).Fatal("打开订单归档失败")
	}
	gw, err := buildGateway(*gatewayName, cfg)
	if err != nil {
		log.WithError(err).Fatal("初始化执行网关失败")
	}
	catalog := orchestrator.NewCatalog()
	engine := execution.NewEngine(gw, cfg.Risk, catalog, archive)
	if err := engine.Restore(ctx); err != nil {
		log.WithError(err).Fatal("恢复订单记录失败")
	}

	// 阶段 agent
	registry := orchestrator.NewRegistry()
	if err := buildAgents(ctx, cfg, registry); err != nil {
		log.WithError(err).Fatal("初始化 agent 失败")
	}

	bus := events.NewBus()
	orch := orchestrator.New(registry, catalog, store, engine, bus, cfg.Runtime)

	// 行情流
	marketStream := stream.NewMarketStream(cfg.Kalshi.WSURL)
	if err := marketStream.Start(ctx); err != nil {
		log.WithError(err).Fatal("连接行情流失败")
	}
	if *tickers != "" {
		if err := marketStream.Subscribe(strings.Split(*tickers, ",")...); err != nil {
			log.WithError(err).Fatal("订阅行情失败")
		}
	}

	// 监控面
	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(cfg.Monitor, orch, engine)
		mon.Start()
	}

	// 优雅退出：行情流 -> run loop -> 监控 -> 存储
	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		marketStream.Stop()
		orch.Stop()
		if mon != nil {
			mon.Shutdown(ctx)
		}
		store.Close()
		archive.Close()
	})

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(ctx, marketStream.Events())
	}()
	log.Infof("pipeline started, gateway=%s", *gatewayName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
		cancel()
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.WithError(err).Error("run loop exited")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	log.Info("bye")
}

package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/gateway"
	"github.com/predictbot/gopredict/pkg/config"
)

type stubCatalog map[string]bool

func (c stubCatalog) Known(id string) bool { return c[id] }

// fakeGateway 可编程 gateway：记录调用、可注入延迟与状态
type fakeGateway struct {
	mu           sync.Mutex
	submits      int
	cancels      int
	statusCalls  int
	balanceCalls int

	submitDelay time.Duration
	submitErr   error
	status      gateway.StatusReport

	entered chan struct{} // 非 nil 时每次 Submit 进入前通知
	gate    chan struct{} // 非 nil 时 Submit 阻塞直到放行

	inFlight    int32
	maxInFlight int32
}

func (g *fakeGateway) Submit(ctx context.Context, order domain.BetOrder) (string, error) {
	cur := atomic.AddInt32(&g.inFlight, 1)
	for {
		max := atomic.LoadInt32(&g.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&g.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&g.inFlight, -1)

	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	if g.submitDelay > 0 {
		time.Sleep(g.submitDelay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return "gw-1", nil
}

func (g *fakeGateway) Status(ctx context.Context, gatewayID string) (gateway.StatusReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	return g.status, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, gatewayID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	return nil
}

func (g *fakeGateway) Balance(ctx context.Context) (domain.PortfolioSnapshot, error) {
	g.mu.Lock()
	g.balanceCalls++
	g.mu.Unlock()
	return domain.PortfolioSnapshot{Cash: decimal.NewFromInt(1000)}, nil
}

func testRisk() config.RiskConfig {
	return config.RiskConfig{
		BetSizeLimit:         100,
		MaxMarketExposure:    250,
		MaxPortfolioExposure: 1000,
		MinConfidence:        0.6,
		KellyFraction:        0.25,
	}
}

func testOrder(amount float64) domain.BetOrder {
	return domain.BetOrder{
		MarketID: "KXTEST-1",
		Side:     domain.SideYes,
		Amount:   amount,
		Price:    domain.PriceFromCents(50),
	}
}

func newTestEngine(gw *fakeGateway) *Engine {
	return NewEngine(gw, testRisk(), stubCatalog{"KXTEST-1": true, "KXTEST-2": true}, nil)
}

func TestPlaceOrderOversizedRejectedWithoutRecord(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	_, err := e.PlaceOrder(context.Background(), testOrder(150))
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if gw.submits != 0 {
		t.Fatal("rejected order must never reach the gateway")
	}
	if len(e.OpenOrders()) != 0 {
		t.Fatal("rejected order must not create a record")
	}
}

func TestPlaceOrderUnknownMarketRejected(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	order := testOrder(50)
	order.MarketID = "NOPE"
	_, err := e.PlaceOrder(context.Background(), order)
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
}

func TestPlaceOrderCreatesPendingRecord(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}
	record, ok := e.Record(id)
	if !ok {
		t.Fatal("record missing after place")
	}
	if record.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if record.GatewayID != "gw-1" {
		t.Fatalf("gateway id = %s", record.GatewayID)
	}
}

func TestGetOrderStatusUnknown(t *testing.T) {
	e := newTestEngine(&fakeGateway{})
	if _, err := e.GetOrderStatus(context.Background(), "ghost"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("err = %v, want ErrUnknownOrder", err)
	}
}

func TestGetOrderStatusSyncsRecord(t *testing.T) {
	gw := &fakeGateway{status: gateway.StatusReport{Status: domain.OrderStatusFilled, FilledAmount: 50}}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}
	status, err := e.GetOrderStatus(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", status)
	}
	record, _ := e.Record(id)
	if record.FilledAmount != 50 {
		t.Fatalf("filled = %v, want 50", record.FilledAmount)
	}

	// 终态后查询不再触网
	calls := gw.statusCalls
	if _, err := e.GetOrderStatus(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if gw.statusCalls != calls {
		t.Fatal("terminal order status must be served locally")
	}
}

func TestCancelOrderIdempotentOnTerminal(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CancelOrder(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	record, _ := e.Record(id)
	if record.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", record.Status)
	}

	// 第二次撤单：幂等返回 nil，不再触网
	if err := e.CancelOrder(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if gw.cancels != 1 {
		t.Fatalf("cancels = %d, want 1", gw.cancels)
	}
}

func TestCancelNeverExistedOrder(t *testing.T) {
	e := newTestEngine(&fakeGateway{})
	if err := e.CancelOrder(context.Background(), "ghost"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTerminalStatusNotOverwritten(t *testing.T) {
	gw := &fakeGateway{status: gateway.StatusReport{Status: domain.OrderStatusFilled, FilledAmount: 50}}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetOrderStatus(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	// 已成交的订单撤单是 no-op，状态保持 filled
	if err := e.CancelOrder(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	record, _ := e.Record(id)
	if record.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", record.Status)
	}
}

func TestSubmissionSerializedPerMarketSide(t *testing.T) {
	gw := &fakeGateway{submitDelay: 30 * time.Millisecond}
	e := newTestEngine(gw)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.PlaceOrder(context.Background(), testOrder(10))
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&gw.maxInFlight); max != 1 {
		t.Fatalf("max concurrent submissions for one (market, side) = %d, want 1", max)
	}
	if gw.submits != 4 {
		t.Fatalf("submits = %d, want 4 (serialized, not deduped)", gw.submits)
	}
}

func TestSubmissionDifferentSidesOverlap(t *testing.T) {
	gw := &fakeGateway{submitDelay: 30 * time.Millisecond}
	e := newTestEngine(gw)

	var wg sync.WaitGroup
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		side := side
		wg.Add(1)
		go func() {
			defer wg.Done()
			order := testOrder(10)
			order.Side = side
			_, _ = e.PlaceOrder(context.Background(), order)
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&gw.maxInFlight); max < 2 {
		t.Logf("sides did not overlap (max=%d); timing dependent, not a failure", max)
	}
	if gw.submits != 2 {
		t.Fatalf("submits = %d, want 2", gw.submits)
	}
}

func TestExposureLimitCountsOpenOrders(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	// 三笔 90 刀：第三笔超出 250 的单市场敞口
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := e.PlaceOrder(ctx, testOrder(90)); err != nil {
			t.Fatal(err)
		}
	}
	_, err := e.PlaceOrder(ctx, testOrder(90))
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want exposure rejection", err)
	}

	// 其他市场不受影响
	other := testOrder(90)
	other.MarketID = "KXTEST-2"
	if _, err := e.PlaceOrder(ctx, other); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentPlacementsRespectPortfolioLimit(t *testing.T) {
	gw := &fakeGateway{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	risk := testRisk()
	risk.MaxPortfolioExposure = 150
	e := NewEngine(gw, risk, stubCatalog{"KXTEST-1": true, "KXTEST-2": true}, nil)

	// 第一笔 90 刀在 gateway 内阻塞，敞口已预留但记录未落表
	errCh := make(chan error, 1)
	go func() {
		_, err := e.PlaceOrder(context.Background(), testOrder(90))
		errCh <- err
	}()
	<-gw.entered

	// 第二笔 90 刀换一个市场并发进来：90+90 > 150，必须被拒
	other := testOrder(90)
	other.MarketID = "KXTEST-2"
	_, err := e.PlaceOrder(context.Background(), other)
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want portfolio exposure rejection", err)
	}

	close(gw.gate)
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if gw.submits != 1 {
		t.Fatalf("submits = %d, want 1", gw.submits)
	}
}

func TestFailedSubmitReleasesReservation(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("exchange down")}
	risk := testRisk()
	risk.MaxPortfolioExposure = 150
	e := NewEngine(gw, risk, stubCatalog{"KXTEST-1": true}, nil)

	ctx := context.Background()
	if _, err := e.PlaceOrder(ctx, testOrder(90)); err == nil {
		t.Fatal("expected gateway failure")
	}

	// 提交失败的预留必须释放，否则第二笔会被幽灵敞口挡住
	gw.mu.Lock()
	gw.submitErr = nil
	gw.mu.Unlock()
	if _, err := e.PlaceOrder(ctx, testOrder(90)); err != nil {
		t.Fatalf("reservation leaked: %v", err)
	}
}

func TestStatusPollingConcurrentWithMonitor(t *testing.T) {
	gw := &fakeGateway{status: gateway.StatusReport{Status: domain.OrderStatusFilled, FilledAmount: 50}}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}

	// orchestrator 轮询与监控面读并发进行，-race 下必须干净
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				status, err := e.GetOrderStatus(context.Background(), id)
				if err != nil {
					t.Error(err)
					return
				}
				if status != domain.OrderStatusPending && status != domain.OrderStatusFilled {
					t.Errorf("status = %s", status)
					return
				}
				e.Record(id)
				e.OpenOrders()
			}
		}()
	}
	wg.Wait()

	record, _ := e.Record(id)
	if record.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", record.Status)
	}
}

func TestGetOrderStatusReturnsPostTransitionState(t *testing.T) {
	gw := &fakeGateway{status: gateway.StatusReport{Status: domain.OrderStatusFilled, FilledAmount: 50}}
	e := newTestEngine(gw)

	id, err := e.PlaceOrder(context.Background(), testOrder(50))
	if err != nil {
		t.Fatal(err)
	}
	// 首次轮询就应返回转移后的状态，而不是转移前的 pending
	status, err := e.GetOrderStatus(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", status)
	}
}

func TestPortfolioBalanceCached(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(gw)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		snap, err := e.GetPortfolioBalance(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !snap.Cash.Equal(decimal.NewFromInt(1000)) {
			t.Fatalf("cash = %s, want 1000", snap.Cash)
		}
	}

	gw.mu.Lock()
	calls := gw.balanceCalls
	gw.mu.Unlock()
	if calls != 1 {
		t.Fatalf("balance calls = %d, want 1 within ttl", calls)
	}
}

package domain

import (
	"testing"
	"time"
)

func TestOrderStatusIsTerminal(t *testing.T) {
	cases := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderStatusPending, false},
		{OrderStatusPartiallyFilled, false},
		{OrderStatusFilled, true},
		{OrderStatusCancelled, true},
		{OrderStatusRejected, true},
	}
	for _, c := range cases {
		if c.status.IsTerminal() != c.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", c.status, c.status.IsTerminal(), c.terminal)
		}
	}
}

func TestOrderRecordIsCancelable(t *testing.T) {
	record := OrderRecord{
		OrderID:   "o1",
		Order:     BetOrder{MarketID: "M1", Side: SideYes, Amount: 10, Price: PriceFromCents(50)},
		Status:    OrderStatusPending,
		CreatedAt: time.Now(),
	}
	if !record.IsCancelable() {
		t.Fatal("pending order must be cancelable")
	}
	record.Status = OrderStatusPartiallyFilled
	if !record.IsCancelable() {
		t.Fatal("partially filled order must be cancelable")
	}
	for _, s := range []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected} {
		record.Status = s
		if record.IsCancelable() {
			t.Errorf("%s order must not be cancelable", s)
		}
	}
}

func TestBetSignalActionable(t *testing.T) {
	hold := BetSignal{MarketID: "M1", Signal: SignalHold, Confidence: 0.9, RecommendedSize: 50}
	if hold.IsActionable() {
		t.Fatal("hold signal must not be actionable")
	}

	zero := BetSignal{MarketID: "M1", Signal: SignalBuyYes, Confidence: 0.9, RecommendedSize: 0}
	if zero.IsActionable() {
		t.Fatal("zero-size signal must not be actionable")
	}

	buy := BetSignal{MarketID: "M1", Signal: SignalBuyNo, Confidence: 0.7, RecommendedSize: 25}
	if !buy.IsActionable() {
		t.Fatal("buy_no with positive size must be actionable")
	}
	if buy.OrderSide() != SideNo {
		t.Fatalf("OrderSide() = %s, want no", buy.OrderSide())
	}
}

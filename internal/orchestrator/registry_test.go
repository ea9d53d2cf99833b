package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/domain"
)

// stubStage is a minimal Runner for wiring tests.
type stubStage struct {
	name    string
	process func(ctx context.Context, input agent.Payload) (agent.Payload, error)

	started int
	stopped int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	if s.process == nil {
		return input, nil
	}
	return s.process(ctx, input)
}

func (s *stubStage) Start() { s.started++ }
func (s *stubStage) Stop()  { s.stopped++ }

func (s *stubStage) Status() agent.Status {
	return agent.Status{Name: s.name, Running: s.started > s.stopped}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubStage{name: "data_cleaning"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&stubStage{name: "data_cleaning"}); !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("duplicate register err = %v, want ErrDuplicateAgent", err)
	}
}

func TestRegistryLifecycleOrder(t *testing.T) {
	r := NewRegistry()
	a := &stubStage{name: "a"}
	b := &stubStage{name: "b"}
	for _, s := range []*stubStage{a, b} {
		if err := r.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.name, err)
		}
	}

	if _, ok := r.Get("a"); !ok {
		t.Fatal("Get(a) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) found")
	}

	r.StartAll()
	statuses := r.Statuses()
	if len(statuses) != 2 || statuses[0].Name != "a" || statuses[1].Name != "b" {
		t.Fatalf("statuses = %+v, want registration order", statuses)
	}
	for _, st := range statuses {
		if !st.Running {
			t.Fatalf("%s not running after StartAll", st.Name)
		}
	}

	r.StopAll()
	if a.stopped != 1 || b.stopped != 1 {
		t.Fatalf("stopped counts a=%d b=%d", a.stopped, b.stopped)
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	now := time.Now()

	c.Put(domain.Market{}) // no id, ignored
	if c.Known("") {
		t.Fatal("empty market id must not be stored")
	}

	open := domain.Market{ID: "M1", CloseTime: now.Add(time.Hour)}
	closed := domain.Market{ID: "M2", CloseTime: now.Add(-time.Hour)}
	c.Put(open)
	c.Put(closed)

	if !c.Known("M1") || !c.Known("M2") {
		t.Fatal("both markets must be known")
	}
	if got, ok := c.Get("M1"); !ok || got.ID != "M1" {
		t.Fatalf("Get(M1) = %+v, %v", got, ok)
	}

	tradable := c.Open(now)
	if len(tradable) != 1 || tradable[0].ID != "M1" {
		t.Fatalf("Open() = %+v, want only M1", tradable)
	}
}

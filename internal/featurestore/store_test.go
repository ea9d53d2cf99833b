package featurestore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/predictbot/gopredict/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndGetLatestRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := domain.FeatureBatch{
		MarketID:  "KXTEST-1",
		Timestamp: time.Now(),
		Vector:    []float64{0.1, 0.2, 0.3},
		Columns:   map[string]float64{"yes_bid": 0.45},
		Metadata:  map[string]string{"trend": "upward"},
	}
	id, err := s.Store(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected generated batch id")
	}

	got, err := s.GetLatest(ctx, "KXTEST-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].BatchID != id {
		t.Fatalf("BatchID = %s, want %s", got[0].BatchID, id)
	}
	if got[0].Columns["yes_bid"] != 0.45 || got[0].Metadata["trend"] != "upward" {
		t.Fatalf("round trip lost fields: %+v", got[0])
	}
}

func TestGetLatestWindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	stamps := []time.Time{
		now.Add(-2 * time.Hour), // 窗口外
		now.Add(-30 * time.Minute),
		now.Add(-10 * time.Minute),
	}
	for _, ts := range stamps {
		if _, err := s.Store(ctx, domain.FeatureBatch{
			MarketID:  "KXTEST-2",
			Timestamp: ts,
			Vector:    []float64{1},
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetLatest(ctx, "KXTEST-2", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (old batch outside window)", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Fatal("batches must come back in ascending time order")
	}
}

func TestGetLatestEmptyMarket(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetLatest(context.Background(), "NOPE", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestRetrieveOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batches := []domain.FeatureBatch{
		{MarketID: "A", Vector: []float64{1, 0}},   // 正交
		{MarketID: "B", Vector: []float64{1, 1}},   // 中间
		{MarketID: "C", Vector: []float64{0, 1}},   // 完全一致
		{MarketID: "D", Vector: []float64{1, 0, 1}}, // 维度不符，跳过
	}
	for _, b := range batches {
		if _, err := s.Store(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Retrieve(ctx, []float64{0, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Batch.MarketID != "C" {
		t.Fatalf("best match = %s, want C", got[0].Batch.MarketID)
	}
	if got[0].Score < got[1].Score {
		t.Fatal("scores must descend")
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Retrieve(context.Background(), []float64{1, 2}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestStoreRequiresMarketID(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Store(context.Background(), domain.FeatureBatch{Vector: []float64{1}}); err == nil {
		t.Fatal("expected validation error for missing market id")
	}
}

func TestStoreAfterCloseUnavailable(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, err := s.Store(context.Background(), domain.FeatureBatch{MarketID: "X"}); err != ErrStorageUnavailable {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestCosine(t *testing.T) {
	if _, ok := Cosine([]float64{1, 2}, []float64{1}); ok {
		t.Fatal("dimension mismatch must not score")
	}
	if _, ok := Cosine([]float64{0, 0}, []float64{1, 1}); ok {
		t.Fatal("zero vector must not score")
	}
	score, ok := Cosine([]float64{1, 2, 3}, []float64{1, 2, 3})
	if !ok || math.Abs(score-1) > 1e-9 {
		t.Fatalf("identical vectors score = %v, want 1", score)
	}
	score, ok = Cosine([]float64{1, 0}, []float64{0, 1})
	if !ok || math.Abs(score) > 1e-9 {
		t.Fatalf("orthogonal vectors score = %v, want 0", score)
	}
}

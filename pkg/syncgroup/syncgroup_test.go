package syncgroup

import (
	"sync/atomic"
	"testing"
)

func TestGoTracksCompletion(t *testing.T) {
	g := NewGroup()
	var done atomic.Int32

	for i := 0; i < 10; i++ {
		if !g.Go(func() { done.Add(1) }) {
			t.Fatal("Go must accept work before stop")
		}
	}
	g.Wait()

	if done.Load() != 10 {
		t.Fatalf("done = %d, want 10", done.Load())
	}
	if g.Active() != 0 {
		t.Fatalf("active = %d, want 0", g.Active())
	}
}

func TestStopRejectsNewWork(t *testing.T) {
	g := NewGroup()
	release := make(chan struct{})
	g.Go(func() { <-release })

	stopped := make(chan struct{})
	go func() {
		g.StopAndWait()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("StopAndWait returned with work in flight")
	default:
	}
	close(release)
	<-stopped

	if g.Go(func() {}) {
		t.Fatal("Go must reject work after stop")
	}
}

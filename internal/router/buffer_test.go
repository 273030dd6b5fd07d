package router

import (
	"sync"
	"testing"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

func TestGrowableBuffer_FIFOAcrossGrowth(t *testing.T) {
	tests := []struct {
		name       string
		initialCap int
		items      int
		minResizes int
	}{
		{"no growth", 10, 5, 0},
		{"grow at 70 percent", 10, 7, 1},
		{"many grows", 4, 100, 3},
		{"min capacity", 0, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewGrowableBuffer[int](tt.initialCap)
			for i := 0; i < tt.items; i++ {
				if !buf.Send(i) {
					t.Fatalf("Send(%d) returned false", i)
				}
			}

			st := buf.Stats()
			if st.Count != tt.items {
				t.Errorf("Count = %d, want %d", st.Count, tt.items)
			}
			if st.ResizeCount < tt.minResizes {
				t.Errorf("ResizeCount = %d, want >= %d", st.ResizeCount, tt.minResizes)
			}

			for i := 0; i < tt.items; i++ {
				got, ok := buf.TryReceive()
				if !ok || got != i {
					t.Fatalf("TryReceive() = %d, %v, want %d, true", got, ok, i)
				}
			}
			if _, ok := buf.TryReceive(); ok {
				t.Error("TryReceive() on empty buffer returned true")
			}
		})
	}
}

func TestGrowableBuffer_GrowWhileWrapped(t *testing.T) {
	buf := NewGrowableBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	// Tail wraps, then growth must unwrap in order.
	for _, v := range []int{4, 5, 6, 7, 8} {
		buf.Send(v)
	}

	got := buf.DrainTo(0)
	want := []int{3, 4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("DrainTo = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DrainTo[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGrowableBuffer_DrainToLimit(t *testing.T) {
	buf := NewGrowableBuffer[model.Execution](4)
	for _, id := range []string{"E1", "E2", "E3"} {
		buf.Send(model.Execution{ExecutionID: id})
	}

	first := buf.DrainTo(2)
	if len(first) != 2 || first[0].ExecutionID != "E1" || first[1].ExecutionID != "E2" {
		t.Errorf("DrainTo(2) = %+v", first)
	}
	rest := buf.DrainTo(10)
	if len(rest) != 1 || rest[0].ExecutionID != "E3" {
		t.Errorf("DrainTo(10) = %+v", rest)
	}
	if buf.DrainTo(0) != nil {
		t.Error("DrainTo on empty buffer should return nil")
	}

	st := buf.Stats()
	if st.TotalReceived != 3 || st.TotalSent != 3 || st.Peak != 3 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestGrowableBuffer_CloseKeepsQueuedItems(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	buf.Send(1)
	buf.Close()

	if buf.Send(2) {
		t.Error("Send after Close should return false")
	}
	if got := buf.DrainTo(0); len(got) != 1 || got[0] != 1 {
		t.Errorf("DrainTo after Close = %v, want [1]", got)
	}
	if !buf.Stats().Closed {
		t.Error("Stats().Closed = false, want true")
	}
}

func TestGrowableBuffer_ReadySignal(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	select {
	case <-buf.Ready():
		t.Fatal("Ready signalled before any Send")
	default:
	}

	buf.Send(1)
	buf.Send(2)

	select {
	case <-buf.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready not signalled after Send")
	}

	// Two sends coalesce into one signal.
	select {
	case <-buf.Ready():
		t.Error("Ready signalled twice for one batch")
	default:
	}
}

func TestGrowableBuffer_ConcurrentSendDrain(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	seen := make(map[int]bool, numItems)
	deadline := time.After(5 * time.Second)
	for len(seen) < numItems {
		select {
		case <-buf.Ready():
			for _, v := range buf.DrainTo(0) {
				seen[v] = true
			}
		case <-deadline:
			t.Fatalf("received %d items, want %d", len(seen), numItems)
		}
	}
	wg.Wait()
}

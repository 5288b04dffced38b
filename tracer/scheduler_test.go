package tracer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNaiveScheduler(t *testing.T) {
	type spec struct {
		speed1   uint32
		speed2   uint32
		frameH   uint32
		expRows1 uint32
		expRows2 uint32
	}
	specs := []spec{
		{1, 2, 10, 4, 6},
		{2, 1, 10, 7, 3},
		{1, 1000, 10, 1, 9},
		{1, 1, 1, 1, 0},
	}

	for index, s := range specs {
		tr1 := makeMockTracer("mock-1", s.speed1)
		tr2 := makeMockTracer("mock-2", s.speed2)
		tracers := []Tracer{tr1, tr2}

		sch := NaiveScheduler()
		blockAssignment := sch.Schedule(tracers, s.frameH)

		if blockAssignment[0] != s.expRows1 {
			t.Fatalf("[spec %d] expected tracer 0 to be assigned %d rows; got %d", index, s.expRows1, blockAssignment[0])
		}

		if blockAssignment[1] != s.expRows2 {
			t.Fatalf("[spec %d] expected tracer 1 to be assigned %d rows; got %d", index, s.expRows2, blockAssignment[1])
		}
	}
}

func TestPerfectScheduler(t *testing.T) {
	type spec struct {
		frameH   uint32
		rTime1   time.Duration
		rTime2   time.Duration
		expRows1 uint32
		expRows2 uint32
	}
	specs := []spec{
		// First call always behaves like the naive scheduler
		{10, time.Duration(1), time.Duration(5), 5, 5},
		// Second call should use the render times to assign rows
		{10, time.Duration(1), time.Duration(5), 9, 1},
		// This time tracer 2 performed much better
		{10, time.Duration(5), time.Duration(1), 7, 3},
		// Missing timings fall back to the speed estimates
		{10, time.Duration(0), time.Duration(1), 5, 5},
	}

	// Tracers have same speed
	tr1 := makeMockTracer("mock-1", 1)
	tr2 := makeMockTracer("mock-2", 1)
	tracers := []Tracer{tr1, tr2}

	sch := PerfectScheduler()
	for index, s := range specs {
		tr1.stats.RenderTime = s.rTime1
		tr2.stats.RenderTime = s.rTime2

		blockAssignment := sch.Schedule(tracers, s.frameH)

		if blockAssignment[0] != s.expRows1 {
			t.Fatalf("[spec %d] expected tracer 0 to be assigned %d rows; got %d", index, s.expRows1, blockAssignment[0])
		}

		if blockAssignment[1] != s.expRows2 {
			t.Fatalf("[spec %d] expected tracer 1 to be assigned %d rows; got %d", index, s.expRows2, blockAssignment[1])
		}

		tr1.stats.BlockH = blockAssignment[0]
		tr2.stats.BlockH = blockAssignment[1]
	}
}

func TestPoolCoversFrame(t *testing.T) {
	const frameH = 37
	pool := NewPool(4, NaiveScheduler())

	var mu sync.Mutex
	rendered := make([]int, frameH)
	for frame := 0; frame < 3; frame++ {
		err := pool.Run(context.Background(), frameH, func(_ context.Context, y0, y1 uint32) error {
			mu.Lock()
			defer mu.Unlock()
			for y := y0; y < y1; y++ {
				rendered[y]++
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for y, count := range rendered {
		if count != 3 {
			t.Fatalf("expected row %d to be rendered once per frame; got %d times in 3 frames", y, count)
		}
	}

	var totalRows uint32
	for _, tr := range pool.Tracers() {
		totalRows += tr.Stats().BlockH
	}
	if totalRows != frameH {
		t.Fatalf("expected worker blocks to add up to %d rows; got %d", frameH, totalRows)
	}
}

func TestPoolErrors(t *testing.T) {
	pool := NewPool(2, nil)
	expErr := errors.New("block failed")
	err := pool.Run(context.Background(), 8, func(_ context.Context, y0, _ uint32) error {
		if y0 == 0 {
			return expErr
		}
		return nil
	})
	if err != expErr {
		t.Fatalf("expected block error to be propagated; got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err = pool.Run(ctx, 8, func(context.Context, uint32, uint32) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
}

type mockTracer struct {
	id    string
	speed uint32
	stats *Stats
}

func makeMockTracer(id string, speed uint32) *mockTracer {
	return &mockTracer{
		id:    id,
		speed: speed,
		stats: &Stats{},
	}
}

func (mt *mockTracer) Id() string {
	return mt.id
}

func (mt *mockTracer) Speed() uint32 {
	return mt.speed
}

func (mt *mockTracer) Stats() *Stats {
	return mt.stats
}

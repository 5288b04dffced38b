package tracer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// A RowFunc renders frame rows [y0, y1).
type RowFunc func(ctx context.Context, y0, y1 uint32) error

// A cpu worker renders one block of rows per frame on its own goroutine.
type cpuWorker struct {
	id    string
	speed uint32
	stats Stats
}

func (w *cpuWorker) Id() string {
	return w.id
}

func (w *cpuWorker) Speed() uint32 {
	return w.speed
}

func (w *cpuWorker) Stats() *Stats {
	return &w.stats
}

// A Pool splits frames into row blocks and renders them concurrently on a
// fixed set of workers. Block sizes are chosen by a BlockScheduler so that
// workers that finished early in the previous frame get more rows.
type Pool struct {
	scheduler BlockScheduler
	tracers   []Tracer
	workers   []*cpuWorker
}

// Create a pool with the given number of workers. If scheduler is nil the
// perfect scheduler is used.
func NewPool(workers int, scheduler BlockScheduler) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if scheduler == nil {
		scheduler = PerfectScheduler()
	}

	p := &Pool{
		scheduler: scheduler,
		tracers:   make([]Tracer, workers),
		workers:   make([]*cpuWorker, workers),
	}
	for idx := range p.workers {
		p.workers[idx] = &cpuWorker{id: fmt.Sprintf("cpu-%d", idx), speed: 1}
		p.tracers[idx] = p.workers[idx]
	}
	return p
}

// Tracers returns the pool workers. Their stats reflect the last frame.
func (p *Pool) Tracers() []Tracer {
	return p.tracers
}

// Run renders a frame of frameH rows by invoking fn once per scheduled
// block. It returns after every block completes or the first error.
func (p *Pool) Run(ctx context.Context, frameH uint32, fn RowFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blockAssignment := p.scheduler.Schedule(p.tracers, frameH)
	g, gctx := errgroup.WithContext(ctx)

	var blockY uint32
	for idx, w := range p.workers {
		w := w
		blockH := blockAssignment[idx]
		y0 := blockY
		blockY += blockH

		w.stats.BlockH = blockH
		w.stats.RenderTime = 0
		if blockH == 0 {
			continue
		}

		g.Go(func() error {
			start := time.Now()
			err := fn(gctx, y0, y0+blockH)
			w.stats.RenderTime = time.Since(start)
			return err
		})
	}
	return g.Wait()
}

package renderer

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
)

/**
 * @brief Everything a worker needs to produce geometry for its slice of a
 * pass. Triangles go into Batch through Flusher, e.g.
 * ctx.Batch.AddV3N3(ctx.Flusher, ...).
 */
type WorkerContext struct {
	Thread  int
	Threads int
	Batch   *batch.Batch
	Flusher batch.Flusher
}

// Slice splits n items evenly between the workers and returns the half open
// range of this worker.
func (ctx WorkerContext) Slice(n int) (int, int) {
	per := (n + ctx.Threads - 1) / ctx.Threads
	start := math.Clamp(ctx.Thread*per, 0, n)
	end := math.Clamp(start+per, 0, n)
	return start, end
}

// Worker produces the geometry of one thread for the pass in flight.
type Worker func(ctx WorkerContext)

// RunStats summarises one harness run.
type RunStats struct {
	Threads int
	// Workers whose final batch reached the flush point.
	Finished   int
	Flushes    int
	Primitives int
}

type runCounters struct {
	flushes    atomic.Int64
	primitives atomic.Int64
	finished   atomic.Int64
}

// workerFlusher sits between a worker and its real flusher. It counts what
// goes through and stops the worker from flushing after its final batch.
type workerFlusher struct {
	inner    batch.Flusher
	counters *runCounters
	finished bool
}

func (f *workerFlusher) Flush(b *batch.Batch) {
	if f.finished {
		core.LogError("worker %d flushed %d primitives after its final batch, dropped", b.Thread, b.Index)
		return
	}
	f.counters.flushes.Add(1)
	f.counters.primitives.Add(int64(b.Index))
	if b.Finished {
		f.finished = true
		f.counters.finished.Add(1)
	}
	f.inner.Flush(b)
}

// threadBatch returns the reusable batch of a thread, rewound for the layout
// and primitive of the pass in flight.
func (r *Renderer) threadBatch(thread int, be Backend) *batch.Batch {
	for len(r.batches) <= thread {
		r.batches = append(r.batches, batch.New(len(r.batches), be.Layout()))
	}
	b := r.batches[thread]
	b.SetLayout(be.Layout())
	b.Primitive = be.Primitive()
	b.Finished = false
	return b
}

// runWorker runs work and makes sure its last flush is marked final, whether
// or not the worker did so itself.
func runWorker(work Worker, ctx WorkerContext, f *workerFlusher) {
	work(ctx)
	if !f.finished {
		ctx.Batch.Finish(f)
	}
}

/**
 * @brief Runs work on MaxThreads workers for the pass in flight and returns
 * once every batch they produced has been drawn.
 *
 * With one thread the worker runs on the calling goroutine and flushes
 * straight into the backend. With more, one goroutine is started per thread.
 * If the backend needs central flushing the calling goroutine becomes the
 * coordinator that draws every handed over batch, otherwise it just waits for
 * the workers to return.
 */
func (r *Renderer) Run(work Worker) (RunStats, error) {
	if err := r.frame.inPass("Run"); err != nil {
		return RunStats{}, err
	}
	be := r.handle.unlocked()
	threads := be.MaxThreads()
	counters := &runCounters{}

	if threads == 1 {
		f := &workerFlusher{inner: lockedFlusher{r.handle}, counters: counters}
		ctx := WorkerContext{Thread: 0, Threads: 1, Batch: r.threadBatch(0, be), Flusher: f}
		runWorker(work, ctx, f)
		return counters.stats(threads), nil
	}

	central := be.NeedsCentralFlush()
	var data chan *batch.Batch
	var acks []chan struct{}
	if central {
		data = make(chan *batch.Batch)
		acks = make([]chan struct{}, threads)
		for i := range acks {
			acks[i] = make(chan struct{})
		}
	}

	var wg sync.WaitGroup
	for thread := 0; thread < threads; thread++ {
		var inner batch.Flusher = be
		if central {
			inner = &handoffFlusher{data: data, ack: acks[thread]}
		}
		f := &workerFlusher{inner: inner, counters: counters}
		ctx := WorkerContext{Thread: thread, Threads: threads, Batch: r.threadBatch(thread, be), Flusher: f}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(work, ctx, f)
		}()
	}

	if central {
		coordinate(r.handle, data, acks, threads)
	}
	wg.Wait()
	return counters.stats(threads), nil
}

func (c *runCounters) stats(threads int) RunStats {
	return RunStats{
		Threads:    threads,
		Finished:   int(c.finished.Load()),
		Flushes:    int(c.flushes.Load()),
		Primitives: int(c.primitives.Load()),
	}
}

// lockedFlusher draws under the handle lock, for the single worker that runs
// on the goroutine owning the context.
type lockedFlusher struct {
	h *Handle
}

func (f lockedFlusher) Flush(b *batch.Batch) {
	_ = f.h.WithLock(func(be Backend) error {
		be.Flush(b)
		return nil
	})
}

package renderer

import (
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
)

// handoffFlusher sends the batches of one worker to the goroutine that owns
// the graphics context. The data channel is shared by every worker, the ack
// channel belongs to this worker alone.
type handoffFlusher struct {
	data chan<- *batch.Batch
	ack  <-chan struct{}
}

// Flush hands over a copy of b and waits until it has been drawn. The
// coordinator draws straight from the copy, and the worker may refill b as
// soon as Flush returns.
// TODO: send b itself and give the worker a fresh batch to avoid the copy.
func (f *handoffFlusher) Flush(b *batch.Batch) {
	f.data <- b.Clone()
	<-f.ack
}

// coordinate draws the batches of threads workers until every one of them
// has sent its final batch. Draws hold the handle lock so that only one is
// in flight at a time.
func coordinate(h *Handle, data <-chan *batch.Batch, acks []chan struct{}, threads int) int {
	finished := 0
	for finished < threads {
		b := <-data
		_ = h.WithLock(func(be Backend) error {
			be.Flush(b)
			return nil
		})
		if b.Finished {
			finished++
		}
		acks[b.Thread] <- struct{}{}
	}
	return finished
}

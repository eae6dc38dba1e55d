package renderer

import "sync"

/**
 * @brief The shared reference to the active backend. Every goroutine that
 * takes part in a frame holds the same Handle.
 *
 * Only the goroutine driving the frame may take the lock to draw. Workers
 * never lock it: they either hand their batches over or, when the backend
 * allows it, flush into storage that no other worker touches.
 */
type Handle struct {
	mu      sync.Mutex
	kind    Kind
	backend Backend
}

func NewHandle(kind Kind, backend Backend) *Handle {
	return &Handle{kind: kind, backend: backend}
}

// Kind is fixed at construction, so reading it needs no lock.
func (h *Handle) Kind() Kind {
	return h.kind
}

// WithLock runs fn with exclusive access to the backend.
func (h *Handle) WithLock(fn func(be Backend) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.backend)
}

// unlocked returns the backend for code paths that rely on data partitioning
// instead of the lock.
func (h *Handle) unlocked() Backend {
	return h.backend
}

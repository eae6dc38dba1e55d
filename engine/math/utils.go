package math

import (
	"sync"
	"time"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

var (
	rngOnce sync.Once
	rngMu   sync.Mutex
	rng     *rand.Rand
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// RandomInRange returns a pseudo random float in [min, max). Safe for use from
// several render workers at once.
func RandomInRange(min, max float32) float32 {
	rngOnce.Do(func() {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	})
	rngMu.Lock()
	f := rng.Float32()
	rngMu.Unlock()
	return min + f*(max-min)
}

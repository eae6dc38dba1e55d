package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	// Primitives drawn in the last frame, summed over every flush.
	Primitives int64
}

var metricsMu sync.Mutex
var metricsState = &MetricsState{}

func MetricsReset() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metricsState = &MetricsState{}
}

func MetricsUpdate(frameElapsedTime float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	metricsState.MStimes[metricsState.FrameAVGCounter] = frameMS
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		metricsState.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}
		metricsState.MSavg /= float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frameMS
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all Frames.
	metricsState.Frames++
}

// MetricsAddPrimitives is called from the flush path, possibly from several
// goroutines at once.
func MetricsAddPrimitives(n int) {
	metricsMu.Lock()
	metricsState.Primitives += int64(n)
	metricsMu.Unlock()
}

// MetricsTakePrimitives returns the primitive count since the last call and
// resets it.
func MetricsTakePrimitives() int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	n := metricsState.Primitives
	metricsState.Primitives = 0
	return n
}

func MetricsFPS() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.MSavg
}

func MetricsFrame() (float64, float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.FPS, metricsState.MSavg
}

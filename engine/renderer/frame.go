package renderer

import (
	"fmt"

	"github.com/spaghettifunk/twinrender/engine/core"
)

// FrameState is where the renderer is within the current frame.
type FrameState int

const (
	FrameIdle FrameState = iota
	FrameBegun
	FramePassInFlight
	FramePassComplete
	FrameEnded
	FramePresented
)

var frameStateNames = []string{"idle", "frame begun", "pass in flight", "pass complete", "frame ended", "presented"}

func (s FrameState) String() string {
	if s < 0 || int(s) >= len(frameStateNames) {
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
	return frameStateNames[s]
}

/**
 * @brief Tracks the lifetime of a frame:
 * idle -> begun -> (pass in flight -> pass complete)* -> ended -> presented.
 * A presented frame counts as idle for the next BeginFrame.
 */
type frameMachine struct {
	state FrameState
	// Passes opened since BeginFrame.
	passes int
}

// advance moves to next when the machine is in one of from. Nothing changes
// on failure.
func (m *frameMachine) advance(op string, next FrameState, from ...FrameState) error {
	for _, s := range from {
		if m.state == s {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s while %s", core.ErrInvalidFrameState, op, m.state)
}

// require checks the state without moving.
func (m *frameMachine) require(op string, states ...FrameState) error {
	for _, s := range states {
		if m.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s while %s", core.ErrInvalidFrameState, op, m.state)
}

func (m *frameMachine) beginFrame() error {
	if err := m.advance("BeginFrame", FrameBegun, FrameIdle, FramePresented); err != nil {
		return err
	}
	m.passes = 0
	return nil
}

func (m *frameMachine) beginPass() error {
	if err := m.advance("BeginPass", FramePassInFlight, FrameBegun, FramePassComplete); err != nil {
		return err
	}
	m.passes++
	return nil
}

func (m *frameMachine) endPass() error {
	return m.advance("EndPass", FramePassComplete, FramePassInFlight)
}

func (m *frameMachine) endFrame() error {
	return m.advance("EndFrame", FrameEnded, FrameBegun, FramePassComplete)
}

func (m *frameMachine) flip() error {
	return m.advance("Flip", FramePresented, FrameEnded)
}

// Depth clears are submitted on their own, so they may not land inside a pass.
func (m *frameMachine) betweenPasses(op string) error {
	return m.require(op, FrameBegun, FramePassComplete)
}

func (m *frameMachine) inPass(op string) error {
	return m.require(op, FramePassInFlight)
}

package core

import "sync"

type EventContext struct {
	Data struct {
		U16 [8]uint16
		I32 [4]int32
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * i32 key_code = data.data.i32[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u16 width = data.data.u16[0];
	 * u16 height = data.data.u16[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// A watched shader source changed on disk.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x10

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

var eventState = &eventSystemState{
	registered: make(map[SystemEventCode][]*registeredEvent),
}

// EventReset drops every registration.
func EventReset() {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered = make(map[SystemEventCode][]*registeredEvent)
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

func EventUnregister(code SystemEventCode, listener interface{}) bool {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	eventState.mu.RLock()
	events := append([]*registeredEvent(nil), eventState.registered[code]...)
	eventState.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

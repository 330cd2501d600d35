package playback

import "sync"

// EventKind names an emitted engine event.
type EventKind string

const (
	EventActiveSegmentChanged  EventKind = "active-segment-changed"
	EventActiveWordChanged     EventKind = "active-word-changed"
	EventLoopStateChanged      EventKind = "loop-state-changed"
	EventRecordingStateChanged EventKind = "recording-state-changed"
	EventViewChanged           EventKind = "view-changed"
)

// Event is delivered to listeners. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// active-segment-changed / active-word-changed
	LocalIndex  int
	GlobalIndex int
	Segment     *Segment
	WordIndex   int
	Word        *Word

	Loop      LoopState
	Recording RecordingState
	View      ViewState

	// Err is set on a failed recording-state transition.
	Err error
}

// Listener receives engine events. Listeners run with no engine lock held and
// may call back into the engine; events raised by such a call are delivered
// after the current one reaches every listener.
type Listener func(Event)

// emitter delivers events in order. Whichever caller finds the queue idle
// drains it, including events queued by re-entrant or concurrent callers.
type emitter struct {
	mu         sync.Mutex
	listeners  []Listener
	queue      []Event
	delivering bool
}

func (e *emitter) subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *emitter) deliver(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, events...)
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for len(e.queue) > 0 {
		ev := e.queue[0]
		e.queue = e.queue[1:]
		listeners := e.listeners
		e.mu.Unlock()

		for _, l := range listeners {
			l(ev)
		}

		e.mu.Lock()
	}
	e.queue = nil
	e.delivering = false
	e.mu.Unlock()
}

// Package progress reports per-letter progress of long running commands.
package progress

// Phase classifies a progress event
type Phase int

const (
	// Working marks an item that is being processed
	Working Phase = iota
	// Done marks an item that was written or uploaded
	Done
	// Unchanged marks an item that needed no work
	Unchanged
	// Skipped marks an item left out by exclusion or by the user
	Skipped
	// Failed marks an item that could not be processed
	Failed
	// Info carries a message that is not tied to an item
	Info
)

func (p Phase) String() string {
	switch p {
	case Working:
		return "working"
	case Done:
		return "done"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Event describes the state of one item. Index is 1-based; Total is zero
// when the event is not part of a numbered run. Final is set on the last
// event of an item.
type Event struct {
	Item    string
	Index   int
	Total   int
	Phase   Phase
	Message string
	Final   bool
}

// Observer receives progress events
type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a function to an Observer
type ObserverFunc func(e Event)

// Notify calls f(e)
func (f ObserverFunc) Notify(e Event) {
	f(e)
}

// Discard drops all events
var Discard Observer = ObserverFunc(func(Event) {})

// Recorder keeps every event it sees. It is meant for tests.
type Recorder struct {
	Events []Event
}

// Notify records e
func (r *Recorder) Notify(e Event) {
	r.Events = append(r.Events, e)
}

// Finals returns the final event of each item, in order
func (r *Recorder) Finals() []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Final {
			out = append(out, e)
		}
	}
	return out
}

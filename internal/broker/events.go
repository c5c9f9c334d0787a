package broker

import "github.com/mtzanidakis/taskmaster/internal/event"

// Interaction lifecycle states plus saver outcomes, as emitted to the event
// sink (journal, bus, monitor).
const (
	StateDispatching   = event.StateDispatching
	StateAwaitingAgent = event.StateAwaitingAgent
	StateCompleted     = event.StateCompleted
	StateFailed        = event.StateFailed
	StateExpired       = event.StateExpired

	StateSaverCompleted = event.StateSaverCompleted
	StateSaverFailed    = event.StateSaverFailed
)

type Event = event.Event

type EventSink = event.Sink

type nopSink struct{}

func (nopSink) InteractionEvent(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) InteractionEvent(ev Event) {
	for _, s := range m {
		s.InteractionEvent(ev)
	}
}

package natsbus

import (
	"log/slog"

	"github.com/mtzanidakis/taskmaster/internal/event"
)

// EventSink publishes interaction events on the bus so external observers
// (the web monitor, the agent) can follow interaction progress.
type EventSink struct {
	client *Client
	log    *slog.Logger
}

func NewEventSink(client *Client, log *slog.Logger) *EventSink {
	if log == nil {
		log = slog.Default()
	}
	return &EventSink{client: client, log: log}
}

func (s *EventSink) InteractionEvent(ev event.Event) {
	topic := TopicInteractionEvent(ev.InteractionID)
	if err := s.client.PublishJSON(topic, ev); err != nil {
		s.log.Warn("publish interaction event failed", "topic", topic, "error", err)
	}
}

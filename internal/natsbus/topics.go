package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicToolInvoke(name string) string {
	return fmt.Sprintf("tool.%s.invoke", name)
}

func TopicInteractionEvent(interactionID string) string {
	return fmt.Sprintf("events.interaction.%s", interactionID)
}

const (
	TopicEventsAll          = "events.>"
	TopicEventsInteractions = "events.interaction.*"
	TopicToolInvokeAll      = "tool.*.invoke"
)

package service

// EventPublisher pushes lifecycle events to connected dashboard clients.
// Satisfied by the websocket hub; publishing must never block a request.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

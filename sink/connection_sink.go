// Package sink bridges the dispatcher's fan-out to individual transport
// connections.
package sink

import (
	"context"

	"activity-hub/domain/event"
)

// ConnectionSink buffers events for a single websocket connection. The
// websocket writer goroutine owns the receiving side of Events.
type ConnectionSink struct {
	Events chan event.DomainEvent
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the dispatcher's fan-out. The event is handed to the
// connection's writer through the buffered channel. A full buffer drops the
// event for this connection only: one slow client must not stall the room.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

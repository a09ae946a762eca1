//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"activity-hub/domain"
	"activity-hub/domain/chat"
	"activity-hub/domain/event"
	"context"
)

// EventSink is one connected client's outbound channel. Consume must be safe
// for concurrent use and must not block past ctx.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry owns both shared maps (connection directory and room membership)
// behind a single synchronization boundary. Add/remove and
// read-member-list-for-broadcast are mutually exclusive.
type IRegistry interface {
	Register(conn domain.Connection, sink EventSink) error
	Unregister(connectionID domain.ConnectionID)
	Lookup(connectionID domain.ConnectionID) (domain.Connection, error)
	SinksForActivity(activityID domain.ActivityID) []EventSink
}

// IDispatcher drives the per-connection state machine
// Connecting -> Joined -> Closed and fans accepted mutations out to the room.
type IDispatcher interface {
	Connect(ctx context.Context, conn domain.Connection, sink EventSink) error
	Disconnect(connectionID domain.ConnectionID)
	Handle(ctx context.Context, connectionID domain.ConnectionID, cmd chat.Command) error
}

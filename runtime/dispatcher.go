package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"activity-hub/contract"
	"activity-hub/domain"
	"activity-hub/domain/chat"
	"activity-hub/domain/event"
	"activity-hub/errors"
	"activity-hub/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Dispatcher is the state machine behind the comment channel. Each connection
// moves Connecting -> Joined -> Closed; while Joined its actions follow the
// same shape: validate, mutate the external store, broadcast on success,
// report only to the requester on failure.
type Dispatcher struct {
	log         *slog.Logger
	registry    contract.IRegistry
	comments    repositories.ICommentRepository
	sinkTimeout time.Duration

	mu        sync.Mutex
	roomLocks map[domain.ActivityID]*sync.Mutex
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry,
	comments repositories.ICommentRepository, sinkTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:         log,
		registry:    registry,
		comments:    comments,
		sinkTimeout: sinkTimeout,
		roomLocks:   make(map[domain.ActivityID]*sync.Mutex),
	}
}

// Connect transitions Connecting -> Joined: the connection is registered,
// added to its room, and receives the current comment list as a single
// snapshot. The snapshot goes to the joining connection only, never to the
// rest of the room.
func (d *Dispatcher) Connect(ctx context.Context, conn domain.Connection, sink contract.EventSink) error {
	if err := d.registry.Register(conn, sink); err != nil {
		return err
	}

	comments, err := d.comments.ListByActivity(ctx, conn.ActivityID)
	if err != nil {
		d.registry.Unregister(conn.ID)
		return fmt.Errorf("%w: loading snapshot: %v", errors.ErrPersistenceFailed, err)
	}

	d.log.Info("Connection joined room",
		"connection_id", conn.ID,
		"activity_id", conn.ActivityID,
		"user_id", conn.UserID)

	return d.deliver(ctx, sink, event.CommentsLoaded{Activity: conn.ActivityID, Comments: comments})
}

// Disconnect transitions Joined -> Closed. Idempotent, and safe to run
// concurrently with an in-flight action for the same connection: the action's
// store call completes, but the broadcast targets the member set as it is at
// dispatch time, so the closed connection simply receives nothing.
func (d *Dispatcher) Disconnect(connectionID domain.ConnectionID) {
	d.registry.Unregister(connectionID)
}

// Handle processes one inbound action for a joined connection. The action set
// is sealed, so the switch is exhaustive; an unknown variant can only appear
// through a programming error and is rejected.
func (d *Dispatcher) Handle(ctx context.Context, connectionID domain.ConnectionID, cmd chat.Command) error {
	conn, err := d.registry.Lookup(connectionID)
	if err != nil {
		return err
	}

	// A connection acts only in the room it joined at connect time.
	if cmd.ActivityID() != conn.ActivityID {
		return fmt.Errorf("%w: action targets activity %s but connection joined %s",
			errors.ErrValidationFailed, cmd.ActivityID(), conn.ActivityID)
	}

	switch c := cmd.(type) {
	case chat.SendComment:
		return d.send(ctx, conn, c)
	case chat.EditComment:
		return d.edit(ctx, conn, c.CommentID, c.Body, false)
	case chat.DeleteComment:
		return d.remove(ctx, conn, c.CommentID, false)
	case chat.EditCommentAdmin:
		if !conn.Admin {
			return fmt.Errorf("%w: admin action requires the admin role", errors.ErrUnauthorized)
		}
		return d.edit(ctx, conn, c.CommentID, c.Body, true)
	case chat.DeleteCommentAdmin:
		if !conn.Admin {
			return fmt.Errorf("%w: admin action requires the admin role", errors.ErrUnauthorized)
		}
		return d.remove(ctx, conn, c.CommentID, true)
	default:
		return fmt.Errorf("%w: unknown action %T", errors.ErrValidationFailed, cmd)
	}
}

func (d *Dispatcher) send(ctx context.Context, conn domain.Connection, cmd chat.SendComment) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidationFailed, err)
	}

	comment := domain.Comment{
		ID:             uuid.New(),
		ActivityID:     conn.ActivityID,
		AuthorID:       conn.UserID,
		AuthorUsername: conn.Username,
		Body:           cmd.Body,
		CreatedAt:      time.Now().UTC(),
	}

	unlock := d.lockRoom(conn.ActivityID)
	defer unlock()

	if err := d.comments.Create(ctx, comment); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistenceFailed, err)
	}
	d.broadcast(ctx, conn.ActivityID, event.CommentPosted{Activity: conn.ActivityID, Comment: comment})
	return nil
}

func (d *Dispatcher) edit(ctx context.Context, conn domain.Connection, commentID uuid.UUID, body string, admin bool) error {
	if err := validate.Struct(chat.EditComment{CommentID: commentID, Body: body}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidationFailed, err)
	}

	unlock := d.lockRoom(conn.ActivityID)
	defer unlock()

	existing, err := d.comments.Get(ctx, commentID)
	if err != nil {
		return err
	}
	if !admin && existing.AuthorID != conn.UserID {
		return fmt.Errorf("%w: edit", errors.ErrUnauthorized)
	}

	existing.Body = body
	if err := d.comments.Update(ctx, existing); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistenceFailed, err)
	}
	d.broadcast(ctx, conn.ActivityID, event.CommentEdited{Activity: conn.ActivityID, Comment: existing})
	return nil
}

func (d *Dispatcher) remove(ctx context.Context, conn domain.Connection, commentID uuid.UUID, admin bool) error {
	if err := validate.Struct(chat.DeleteComment{CommentID: commentID}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidationFailed, err)
	}

	unlock := d.lockRoom(conn.ActivityID)
	defer unlock()

	existing, err := d.comments.Get(ctx, commentID)
	if err != nil {
		return err
	}
	if !admin && existing.AuthorID != conn.UserID {
		return fmt.Errorf("%w: delete", errors.ErrUnauthorized)
	}

	if err := d.comments.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistenceFailed, err)
	}
	d.broadcast(ctx, conn.ActivityID, event.CommentRemoved{Activity: conn.ActivityID, CommentID: commentID})
	return nil
}

// broadcast fans an event out to every sink currently in the room. The member
// list is read after the store call completed, so a connection closed during
// persistence is simply absent and a connection joined meanwhile is included.
// A slow or full sink only loses its own delivery; it never blocks the room.
func (d *Dispatcher) broadcast(ctx context.Context, activityID domain.ActivityID, e event.DomainEvent) {
	for _, sink := range d.registry.SinksForActivity(activityID) {
		if err := d.deliver(ctx, sink, e); err != nil {
			d.log.Warn("Dropped event for one room member",
				"activity_id", activityID,
				"error", err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	deliveryCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
	defer cancel()
	return sink.Consume(deliveryCtx, e)
}

// lockRoom serializes mutate+broadcast per room so members observe events in
// the order actions were accepted. Rooms are independent: operations on
// different activities never contend on each other's lock.
func (d *Dispatcher) lockRoom(activityID domain.ActivityID) func() {
	d.mu.Lock()
	lock, ok := d.roomLocks[activityID]
	if !ok {
		lock = &sync.Mutex{}
		d.roomLocks[activityID] = lock
	}
	d.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

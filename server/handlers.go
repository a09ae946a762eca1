package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"activity-hub/auth"
	"activity-hub/contract"
	"activity-hub/domain"
	"activity-hub/domain/event"
	"activity-hub/errors"
	"activity-hub/repositories"
	"activity-hub/runtime"
	"activity-hub/sink"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Locals keys set by the chat upgrade middleware.
const (
	localIdentity = "identity"
	localActivity = "activity_id"
)

type Handlers struct {
	log        *slog.Logger
	dispatcher contract.IDispatcher
	comments   repositories.ICommentRepository
	registry   *runtime.Registry
	bufferSize int
}

func NewHandlers(log *slog.Logger, dispatcher contract.IDispatcher,
	comments repositories.ICommentRepository, registry *runtime.Registry,
	bufferSize int) *Handlers {
	return &Handlers{
		log:        log,
		dispatcher: dispatcher,
		comments:   comments,
		registry:   registry,
		bufferSize: bufferSize,
	}
}

// HandleChat owns one websocket connection for its whole lifetime. The
// handler goroutine reads inbound frames; a second goroutine drains the
// connection's sink so every write (snapshots, broadcasts, rejections) goes
// through a single writer.
func (h *Handlers) HandleChat(c *websocket.Conn) {
	identity := c.Locals(localIdentity).(auth.Identity)
	activityID := c.Locals(localActivity).(domain.ActivityID)

	conn := domain.Connection{
		ID:         domain.ConnectionID(uuid.NewString()),
		ActivityID: activityID,
		UserID:     identity.UserID,
		Username:   identity.Username,
		Admin:      identity.IsAdmin(),
	}
	connectionSink := sink.NewConnectionSink(h.bufferSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.dispatcher.Connect(ctx, conn, connectionSink); err != nil {
		h.log.Error("Join refused",
			"connection_id", conn.ID,
			"activity_id", activityID,
			"error", err)
		h.write(c, toOutbound(rejected(activityID, err)))
		return
	}
	defer h.dispatcher.Disconnect(conn.ID)

	// Single writer for this connection. Started only after Connect so the
	// refusal frame above cannot race it.
	writerDone := make(chan struct{})
	go h.writeLoop(ctx, c, conn, connectionSink, writerDone)

	h.readLoop(ctx, c, conn, connectionSink)

	// Transport closed: leave the room first, then stop the writer.
	h.dispatcher.Disconnect(conn.ID)
	cancel()
	<-writerDone

	h.log.Info("Connection closed",
		"connection_id", conn.ID,
		"activity_id", activityID,
		"user_id", conn.UserID)
}

func (h *Handlers) readLoop(ctx context.Context, c *websocket.Conn,
	conn domain.Connection, connectionSink *sink.ConnectionSink) {
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("Websocket read failed",
					"connection_id", conn.ID,
					"error", err)
			}
			return
		}

		cmd, err := parseCommand(raw)
		if err != nil {
			h.reject(ctx, conn, connectionSink, err)
			continue
		}
		if err := h.dispatcher.Handle(ctx, conn.ID, cmd); err != nil {
			h.reject(ctx, conn, connectionSink, err)
		}
	}
}

func (h *Handlers) writeLoop(ctx context.Context, c *websocket.Conn,
	conn domain.Connection, connectionSink *sink.ConnectionSink, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-connectionSink.Events:
			if err := h.write(c, toOutbound(e)); err != nil {
				h.log.Error("Failed to push event to websocket",
					"connection_id", conn.ID,
					"activity_id", conn.ActivityID,
					"error", err)
				return
			}
		}
	}
}

// reject reports a failed action through the connection's own sink, so the
// rejection reaches the requester only and stays ordered with the events the
// writer is already delivering.
func (h *Handlers) reject(ctx context.Context, conn domain.Connection,
	connectionSink *sink.ConnectionSink, err error) {
	h.log.Debug("Action rejected",
		"connection_id", conn.ID,
		"reason", errors.Reason(err),
		"error", err)
	_ = connectionSink.Consume(ctx, rejected(conn.ActivityID, err))
}

func rejected(activityID domain.ActivityID, err error) event.ActionRejected {
	return event.ActionRejected{
		Activity: activityID,
		Reason:   errors.Reason(err),
		Detail:   err.Error(),
	}
}

func (h *Handlers) write(c *websocket.Conn, msg OutboundMessage) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, bytes)
}

// REST handlers

// GetComments serves the comment history of one activity
// (GET /api/activities/:activityId/comments). Same read path the websocket
// snapshot uses.
func (h *Handlers) GetComments(c *fiber.Ctx) error {
	activityID, err := domain.ParseActivityID(c.Params("activityId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "activityId must be a valid uuid")
	}

	comments, err := h.comments.ListByActivity(c.UserContext(), activityID)
	if err != nil {
		return fmt.Errorf("listing comments for %s: %w", activityID, err)
	}

	return c.JSON(fiber.Map{
		"activityId": activityID.String(),
		"comments":   toCommentResponses(comments),
		"total":      len(comments),
	})
}

// HealthCheck reports liveness plus live connection/room counts
// (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	connections, rooms := h.registry.Counts()
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"service":     "activity-hub",
		"connections": connections,
		"rooms":       rooms,
	})
}

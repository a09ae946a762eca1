package server

import (
	"encoding/json"
	"fmt"
	"time"

	"activity-hub/domain"
	"activity-hub/domain/chat"
	"activity-hub/domain/event"
	"activity-hub/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Inbound action names (client -> server).
const (
	inSendComment        = "SendComment"
	inEditComment        = "EditComment"
	inDeleteComment      = "DeleteComment"
	inEditCommentAdmin   = "EditCommentAdmin"
	inDeleteCommentAdmin = "DeleteCommentAdmin"
)

// Outbound event names (server -> client). Deliberately distinct from the
// inbound names: EditComment/DeleteComment come in, CommentEdited and
// CommentDeleted go out.
const (
	outLoadComments   = "LoadComments"
	outReceiveComment = "ReceiveComment"
	outCommentEdited  = "CommentEdited"
	outCommentDeleted = "CommentDeleted"
	outError          = "Error"
)

// InboundMessage is one websocket frame from the client.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is one websocket frame to the client.
type OutboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommentResponse is the wire form of a persisted comment.
type CommentResponse struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activityId"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

type sendCommentPayload struct {
	ActivityID string `json:"activityId"`
	Body       string `json:"body"`
}

type editCommentPayload struct {
	CommentID  string `json:"commentId"`
	ActivityID string `json:"activityId"`
	Body       string `json:"body"`
}

type deleteCommentPayload struct {
	CommentID  string `json:"commentId"`
	ActivityID string `json:"activityId"`
}

// parseCommand decodes one inbound frame into a domain action. Malformed
// frames and unknown action names are validation failures reported to the
// sender only.
func parseCommand(raw []byte) (chat.Command, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %v", errors.ErrValidationFailed, err)
	}

	switch msg.Type {
	case inSendComment:
		var p sendCommentPayload
		activityID, err := unmarshalPayload(msg.Payload, &p, func() string { return p.ActivityID })
		if err != nil {
			return nil, err
		}
		return chat.SendComment{Activity: activityID, Body: p.Body}, nil

	case inEditComment, inEditCommentAdmin:
		var p editCommentPayload
		activityID, err := unmarshalPayload(msg.Payload, &p, func() string { return p.ActivityID })
		if err != nil {
			return nil, err
		}
		commentID, err := parseCommentID(p.CommentID)
		if err != nil {
			return nil, err
		}
		if msg.Type == inEditCommentAdmin {
			return chat.EditCommentAdmin{CommentID: commentID, Activity: activityID, Body: p.Body}, nil
		}
		return chat.EditComment{CommentID: commentID, Activity: activityID, Body: p.Body}, nil

	case inDeleteComment, inDeleteCommentAdmin:
		var p deleteCommentPayload
		activityID, err := unmarshalPayload(msg.Payload, &p, func() string { return p.ActivityID })
		if err != nil {
			return nil, err
		}
		commentID, err := parseCommentID(p.CommentID)
		if err != nil {
			return nil, err
		}
		if msg.Type == inDeleteCommentAdmin {
			return chat.DeleteCommentAdmin{CommentID: commentID, Activity: activityID}, nil
		}
		return chat.DeleteComment{CommentID: commentID, Activity: activityID}, nil

	default:
		return nil, fmt.Errorf("%w: unknown action %q", errors.ErrValidationFailed, msg.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, target any, activityID func() string) (domain.ActivityID, error) {
	if err := json.Unmarshal(raw, target); err != nil {
		return domain.ActivityID{}, fmt.Errorf("%w: malformed payload: %v", errors.ErrValidationFailed, err)
	}
	parsed, err := domain.ParseActivityID(activityID())
	if err != nil {
		return domain.ActivityID{}, fmt.Errorf("%w: activityId: %v", errors.ErrValidationFailed, err)
	}
	return parsed, nil
}

func parseCommentID(s string) (uuid.UUID, error) {
	commentID, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: commentId: %v", errors.ErrValidationFailed, err)
	}
	return commentID, nil
}

// toOutbound translates a dispatcher event into its wire frame.
func toOutbound(e event.DomainEvent) OutboundMessage {
	switch evt := e.(type) {
	case event.CommentsLoaded:
		return OutboundMessage{Type: outLoadComments, Payload: toCommentResponses(evt.Comments)}
	case event.CommentPosted:
		return OutboundMessage{Type: outReceiveComment, Payload: toCommentResponse(evt.Comment)}
	case event.CommentEdited:
		return OutboundMessage{Type: outCommentEdited, Payload: toCommentResponse(evt.Comment)}
	case event.CommentRemoved:
		return OutboundMessage{Type: outCommentDeleted, Payload: map[string]string{"commentId": evt.CommentID.String()}}
	case event.ActionRejected:
		return OutboundMessage{Type: outError, Reason: evt.Reason, Error: evt.Detail}
	default:
		return OutboundMessage{Type: outError, Reason: errors.ReasonInternal, Error: fmt.Sprintf("unmapped event %T", e)}
	}
}

func toCommentResponses(comments []domain.Comment) []CommentResponse {
	return lo.Map(comments, func(item domain.Comment, _ int) CommentResponse {
		return toCommentResponse(item)
	})
}

func toCommentResponse(comment domain.Comment) CommentResponse {
	return CommentResponse{
		ID:             comment.ID.String(),
		ActivityID:     comment.ActivityID.String(),
		AuthorID:       comment.AuthorID,
		AuthorUsername: comment.AuthorUsername,
		Body:           comment.Body,
		CreatedAt:      comment.CreatedAt,
	}
}

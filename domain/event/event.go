// Package event defines the outbound events delivered to connected clients.
// Outbound names are deliberately distinct from inbound action names: the
// inbound EditComment/DeleteComment actions produce CommentEdited and
// CommentRemoved events, so the two directions can never be confused.
package event

import (
	"activity-hub/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	ActivityID() domain.ActivityID
}

// CommentsLoaded is the history snapshot sent once, to the joining connection
// only, immediately after a successful join.
type CommentsLoaded struct {
	Activity domain.ActivityID
	Comments []domain.Comment
}

func (e CommentsLoaded) ActivityID() domain.ActivityID { return e.Activity }

// CommentPosted is broadcast to every room member (sender included) after a
// comment has been persisted.
type CommentPosted struct {
	Activity domain.ActivityID
	Comment  domain.Comment
}

func (e CommentPosted) ActivityID() domain.ActivityID { return e.Activity }

// CommentEdited carries the full updated comment after a successful edit.
type CommentEdited struct {
	Activity domain.ActivityID
	Comment  domain.Comment
}

func (e CommentEdited) ActivityID() domain.ActivityID { return e.Activity }

// CommentRemoved carries only the id of the deleted comment.
type CommentRemoved struct {
	Activity  domain.ActivityID
	CommentID uuid.UUID
}

func (e CommentRemoved) ActivityID() domain.ActivityID { return e.Activity }

// ActionRejected reports a failed action back to the requesting connection
// only. It never reaches other room members and never tears the connection
// down.
type ActionRejected struct {
	Activity domain.ActivityID
	Reason   string
	Detail   string
}

func (e ActionRejected) ActivityID() domain.ActivityID { return e.Activity }

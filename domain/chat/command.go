// Package chat defines the closed set of inbound actions a joined connection
// may trigger. The set is sealed so the dispatcher can match it exhaustively;
// adding an action is a compile-time visible change.
package chat

import (
	"activity-hub/domain"

	"github.com/google/uuid"
)

type Command interface {
	ActivityID() domain.ActivityID
	isChatCommand()
}

// SendComment posts a new comment to the connection's room.
type SendComment struct {
	Activity domain.ActivityID
	Body     string `validate:"required"`
}

func (c SendComment) ActivityID() domain.ActivityID { return c.Activity }
func (c SendComment) isChatCommand()                {}

// EditComment replaces the body of an existing comment.
// Only the original author may edit (checked by the dispatcher).
type EditComment struct {
	CommentID uuid.UUID `validate:"required"`
	Activity  domain.ActivityID
	Body      string `validate:"required"`
}

func (c EditComment) ActivityID() domain.ActivityID { return c.Activity }
func (c EditComment) isChatCommand()                {}

// DeleteComment removes an existing comment.
// Only the original author may delete (checked by the dispatcher).
type DeleteComment struct {
	CommentID uuid.UUID `validate:"required"`
	Activity  domain.ActivityID
}

func (c DeleteComment) ActivityID() domain.ActivityID { return c.Activity }
func (c DeleteComment) isChatCommand()                {}

// EditCommentAdmin is the elevated edit variant: it bypasses the author check
// but requires the admin role. Kept as a separate action rather than a flag so
// the authorization decision stays explicit and auditable.
type EditCommentAdmin struct {
	CommentID uuid.UUID `validate:"required"`
	Activity  domain.ActivityID
	Body      string `validate:"required"`
}

func (c EditCommentAdmin) ActivityID() domain.ActivityID { return c.Activity }
func (c EditCommentAdmin) isChatCommand()                {}

// DeleteCommentAdmin is the elevated delete variant, same shape as
// DeleteComment with elevated authorization.
type DeleteCommentAdmin struct {
	CommentID uuid.UUID `validate:"required"`
	Activity  domain.ActivityID
}

func (c DeleteCommentAdmin) ActivityID() domain.ActivityID { return c.Activity }
func (c DeleteCommentAdmin) isChatCommand()                {}

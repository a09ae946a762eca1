// Package domain contains core concepts of the activity comment channel.
// This file defines Comment entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityID identifies the activity (event) a comment room belongs to.
type ActivityID uuid.UUID

func (id ActivityID) String() string {
	return uuid.UUID(id).String()
}

// ParseActivityID parses the query-parameter form of an activity id.
func ParseActivityID(s string) (ActivityID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ActivityID{}, err
	}
	return ActivityID(parsed), nil
}

// Comment represents a persisted comment on an activity.
// A comment belongs to exactly one activity for its lifetime.
// Author fields and CreatedAt are set once at creation and never mutated;
// only Body changes on edit. Author-only edit/delete is enforced by the
// dispatcher, not by storage.
type Comment struct {
	ID             uuid.UUID
	ActivityID     ActivityID
	AuthorID       string
	AuthorUsername string
	Body           string
	CreatedAt      time.Time
}

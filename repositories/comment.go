//go:generate go run go.uber.org/mock/mockgen -source=comment.go -destination=../mocks/mock_comment_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"activity-hub/domain"
	"activity-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ICommentRepository is the capability contract the dispatcher requires from
// the external comment store. Get exists because the dispatcher must resolve
// the stored author identity before authorizing an edit or delete.
type ICommentRepository interface {
	Create(ctx context.Context, comment domain.Comment) error
	Get(ctx context.Context, commentID uuid.UUID) (domain.Comment, error)
	Update(ctx context.Context, comment domain.Comment) error
	Delete(ctx context.Context, commentID uuid.UUID) error
	ListByActivity(ctx context.Context, activityID domain.ActivityID) ([]domain.Comment, error)
}

type CommentRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitComments *int
}

func NewCommentRepository(db *badger.DB, log *slog.Logger, limitComments *int) CommentRepository {
	return CommentRepository{db: db, log: log, limitComments: limitComments}
}

type diskComment struct {
	ID             uuid.UUID `json:"id"`
	ActivityID     uuid.UUID `json:"activity_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Body           string    `json:"body"`
	At             int64     `json:"at"`
}

// Keys are formatted as "comment:{activity_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     comments arrive at the same nanosecond.
//
// A secondary key "cidx:{uuid}" points at the primary key so edits and
// deletes can resolve a comment without knowing its timestamp.
func commentKey(activityID domain.ActivityID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("comment:%s:%019d:%s", activityID, at.UnixNano(), id))
}

func indexKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("cidx:%s", id))
}

func activityPrefix(activityID domain.ActivityID) []byte {
	return []byte(fmt.Sprintf("comment:%s:", activityID))
}

// Create persists a new comment under both its primary and index key in a
// single transaction.
func (r CommentRepository) Create(_ context.Context, comment domain.Comment) error {
	bytes, err := json.Marshal(fromComment(comment))
	if err != nil {
		return err
	}
	primary := commentKey(comment.ActivityID, comment.CreatedAt, comment.ID)
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(comment.ID), primary)
	})
}

func (r CommentRepository) Get(_ context.Context, commentID uuid.UUID) (domain.Comment, error) {
	var comment domain.Comment
	err := r.db.View(func(txn *badger.Txn) error {
		primary, err := resolvePrimaryKey(txn, commentID)
		if err != nil {
			return err
		}
		item, err := txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			comment, err = unmarshalComment(value)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Comment{}, fmt.Errorf("%w: %s", errors.ErrNotFound, commentID)
	}
	return comment, err
}

// Update rewrites the stored value in place. The primary key embeds the
// original CreatedAt, which never changes, so the key stays stable across
// edits.
func (r CommentRepository) Update(_ context.Context, comment domain.Comment) error {
	bytes, err := json.Marshal(fromComment(comment))
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		primary, err := resolvePrimaryKey(txn, comment.ID)
		if err != nil {
			return err
		}
		return txn.Set(primary, bytes)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", errors.ErrNotFound, comment.ID)
	}
	return err
}

func (r CommentRepository) Delete(_ context.Context, commentID uuid.UUID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		primary, err := resolvePrimaryKey(txn, commentID)
		if err != nil {
			return err
		}
		if err := txn.Delete(primary); err != nil {
			return err
		}
		return txn.Delete(indexKey(commentID))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", errors.ErrNotFound, commentID)
	}
	return err
}

// ListByActivity retrieves the comments of one activity in chronological
// order using a prefix scan. The scan walks newest-first so the configured
// limit keeps the most recent comments, then the slice is reversed back to
// chronological order for the snapshot.
func (r CommentRepository) ListByActivity(_ context.Context, activityID domain.ActivityID) ([]domain.Comment, error) {
	var byteComments [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := activityPrefix(activityID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if r.limitComments != nil && len(byteComments) == *r.limitComments {
				r.log.Debug(fmt.Sprintf("Maximum of %d comments reached", *r.limitComments))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				byteComments = append(byteComments, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	comments := make([]domain.Comment, 0, len(byteComments))
	for _, b := range byteComments {
		comment, err := unmarshalComment(b)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return lo.Reverse(comments), nil
}

func resolvePrimaryKey(txn *badger.Txn, commentID uuid.UUID) ([]byte, error) {
	item, err := txn.Get(indexKey(commentID))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func unmarshalComment(value []byte) (domain.Comment, error) {
	var dc diskComment
	if err := json.Unmarshal(value, &dc); err != nil {
		return domain.Comment{}, err
	}
	return toComment(dc), nil
}

func fromComment(comment domain.Comment) diskComment {
	return diskComment{
		ID:             comment.ID,
		ActivityID:     uuid.UUID(comment.ActivityID),
		AuthorID:       comment.AuthorID,
		AuthorUsername: comment.AuthorUsername,
		Body:           comment.Body,
		At:             comment.CreatedAt.UnixNano(),
	}
}

func toComment(dc diskComment) domain.Comment {
	return domain.Comment{
		ID:             dc.ID,
		ActivityID:     domain.ActivityID(dc.ActivityID),
		AuthorID:       dc.AuthorID,
		AuthorUsername: dc.AuthorUsername,
		Body:           dc.Body,
		CreatedAt:      time.Unix(0, dc.At).UTC(),
	}
}

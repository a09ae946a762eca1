package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"activity-hub/domain"
	"activity-hub/domain/chat"
	"activity-hub/domain/event"
	"activity-hub/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSinkTimeout = time.Second

// recordingSink collects every event delivered to one connection.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent{}, s.events...)
}

// fakeRepository is an in-memory comment store double that counts every
// invocation, so tests can assert a rejected action never reached the store.
type fakeRepository struct {
	mu       sync.Mutex
	comments map[uuid.UUID]domain.Comment
	creates  int
	updates  int
	deletes  int

	failCreate bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{comments: make(map[uuid.UUID]domain.Comment)}
}

func (r *fakeRepository) Create(_ context.Context, comment domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.failCreate {
		return fmt.Errorf("store unavailable")
	}
	r.comments[comment.ID] = comment
	return nil
}

func (r *fakeRepository) Get(_ context.Context, commentID uuid.UUID) (domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comment, ok := r.comments[commentID]
	if !ok {
		return domain.Comment{}, fmt.Errorf("%w: %s", errors.ErrNotFound, commentID)
	}
	return comment, nil
}

func (r *fakeRepository) Update(_ context.Context, comment domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	r.comments[comment.ID] = comment
	return nil
}

func (r *fakeRepository) Delete(_ context.Context, commentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.comments, commentID)
	return nil
}

func (r *fakeRepository) ListByActivity(_ context.Context, activityID domain.ActivityID) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comments := make([]domain.Comment, 0)
	for _, comment := range r.comments {
		if comment.ActivityID == activityID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (r *fakeRepository) invocations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates + r.updates + r.deletes
}

type fixture struct {
	dispatcher *Dispatcher
	repository *fakeRepository
	activityID domain.ActivityID
}

func newFixture() fixture {
	repository := newFakeRepository()
	return fixture{
		dispatcher: NewDispatcher(slog.Default(), NewRegistry(), repository, testSinkTimeout),
		repository: repository,
		activityID: domain.ActivityID(uuid.New()),
	}
}

func (f fixture) join(t *testing.T, username string, admin bool) (domain.Connection, *recordingSink) {
	t.Helper()
	conn := domain.Connection{
		ID:         domain.ConnectionID(uuid.NewString()),
		ActivityID: f.activityID,
		UserID:     uuid.NewString(),
		Username:   username,
		Admin:      admin,
	}
	sink := &recordingSink{}
	require.NoError(t, f.dispatcher.Connect(context.Background(), conn, sink))
	return conn, sink
}

func TestDispatcher_Join_Sends_Snapshot_To_Joiner_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	// Given an empty room with one member
	_, sinkA := f.join(t, "alice", false)

	// When a second connection joins
	_, sinkB := f.join(t, "bob", false)

	// Then the joiner receives exactly one empty snapshot
	events := sinkB.Events()
	req.Len(events, 1)
	snapshot, ok := events[0].(event.CommentsLoaded)
	req.True(ok)
	req.Empty(snapshot.Comments)

	// And the earlier member receives nothing for that join
	req.Len(sinkA.Events(), 1)
	_, ok = sinkA.Events()[0].(event.CommentsLoaded)
	req.True(ok)
}

func TestDispatcher_Send_Broadcasts_To_All_Members_Including_Sender(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)
	_, sinkB := f.join(t, "bob", false)

	// And a member of an unrelated room
	otherRoom := newFixture()
	otherRoom.dispatcher = f.dispatcher
	otherRoom.activityID = domain.ActivityID(uuid.New())
	_, sinkOther := otherRoom.join(t, "carol", false)

	// When alice sends a comment
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"})
	req.NoError(err)

	// Then both room members receive exactly one CommentPosted
	for _, sink := range []*recordingSink{sinkA, sinkB} {
		events := sink.Events()
		req.Len(events, 2) // snapshot + broadcast
		posted, ok := events[1].(event.CommentPosted)
		req.True(ok)
		req.Equal("hello", posted.Comment.Body)
		req.Equal(connA.UserID, posted.Comment.AuthorID)
		req.Equal("alice", posted.Comment.AuthorUsername)
	}

	// And the other room saw nothing beyond its own snapshot
	req.Len(sinkOther.Events(), 1)
}

func TestDispatcher_Send_Empty_Body_Rejected_Without_Store_Call(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)

	// When alice sends an empty body
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: ""})

	// Then the action fails validation, the store is never called, and no
	// broadcast happened
	req.ErrorIs(err, errors.ErrValidationFailed)
	req.Zero(f.repository.invocations())
	req.Len(sinkA.Events(), 1)
}

func TestDispatcher_Send_Persistence_Failure_Produces_No_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)
	f.repository.failCreate = true

	// When persistence does not confirm the write
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"})

	// Then the failure is local to the sender and nothing was broadcast
	req.ErrorIs(err, errors.ErrPersistenceFailed)
	req.Len(sinkA.Events(), 1)
}

func TestDispatcher_Edit_By_Non_Author_Rejected(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, _ := f.join(t, "alice", false)
	connB, sinkB := f.join(t, "bob", false)

	// Given a comment by alice
	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"}))
	posted := sinkB.Events()[1].(event.CommentPosted)

	// When bob tries to edit it
	err := f.dispatcher.Handle(context.Background(), connB.ID,
		chat.EditComment{CommentID: posted.Comment.ID, Activity: f.activityID, Body: "hacked"})

	// Then only bob observes the rejection, no broadcast happened
	req.ErrorIs(err, errors.ErrUnauthorized)
	req.Len(sinkB.Events(), 2)

	// And a newly joining connection still sees the original body
	_, sinkC := f.join(t, "carol", false)
	snapshot := sinkC.Events()[0].(event.CommentsLoaded)
	req.Len(snapshot.Comments, 1)
	req.Equal("hello", snapshot.Comments[0].Body)
}

func TestDispatcher_Edit_By_Author_Broadcasts_Updated_Comment(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)
	_, sinkB := f.join(t, "bob", false)

	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"}))
	posted := sinkA.Events()[1].(event.CommentPosted)

	// When alice edits her own comment
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.EditComment{CommentID: posted.Comment.ID, Activity: f.activityID, Body: "hello again"})
	req.NoError(err)

	// Then everyone in the room receives the updated comment, with author
	// and creation time unchanged
	for _, sink := range []*recordingSink{sinkA, sinkB} {
		edited, ok := sink.Events()[2].(event.CommentEdited)
		req.True(ok)
		req.Equal("hello again", edited.Comment.Body)
		req.Equal(posted.Comment.AuthorID, edited.Comment.AuthorID)
		req.Equal(posted.Comment.CreatedAt, edited.Comment.CreatedAt)
	}
}

func TestDispatcher_Delete_By_Author_Broadcasts_Removal(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)

	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"}))
	posted := sinkA.Events()[1].(event.CommentPosted)

	// When alice deletes her comment
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.DeleteComment{CommentID: posted.Comment.ID, Activity: f.activityID})
	req.NoError(err)

	// Then the removal event carries only the comment id
	removed, ok := sinkA.Events()[2].(event.CommentRemoved)
	req.True(ok)
	req.Equal(posted.Comment.ID, removed.CommentID)

	// And the comment is gone from the store
	_, err = f.repository.Get(context.Background(), posted.Comment.ID)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestDispatcher_Admin_Delete_Bypasses_Author_Check(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)
	admin, _ := f.join(t, "root", true)

	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"}))
	posted := sinkA.Events()[1].(event.CommentPosted)

	// When an admin deletes alice's comment through the elevated action
	err := f.dispatcher.Handle(context.Background(), admin.ID,
		chat.DeleteCommentAdmin{CommentID: posted.Comment.ID, Activity: f.activityID})

	// Then the delete succeeds despite the admin not being the author
	req.NoError(err)
	_, err = f.repository.Get(context.Background(), posted.Comment.ID)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestDispatcher_Admin_Action_Requires_Admin_Role(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, sinkA := f.join(t, "alice", false)
	connB, _ := f.join(t, "bob", false)

	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "hello"}))
	posted := sinkA.Events()[1].(event.CommentPosted)

	// When a regular user issues the elevated delete
	err := f.dispatcher.Handle(context.Background(), connB.ID,
		chat.DeleteCommentAdmin{CommentID: posted.Comment.ID, Activity: f.activityID})

	// Then the action is rejected before any store call
	req.ErrorIs(err, errors.ErrUnauthorized)
	_, getErr := f.repository.Get(context.Background(), posted.Comment.ID)
	req.NoError(getErr)
}

func TestDispatcher_Edit_Unknown_Comment_Not_Found(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, _ := f.join(t, "alice", false)

	// When editing a comment that does not exist
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.EditComment{CommentID: uuid.New(), Activity: f.activityID, Body: "x"})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestDispatcher_Action_For_Foreign_Room_Rejected(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, _ := f.join(t, "alice", false)

	// When the action targets a room the connection never joined
	err := f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: domain.ActivityID(uuid.New()), Body: "hello"})

	req.ErrorIs(err, errors.ErrValidationFailed)
	req.Zero(f.repository.invocations())
}

func TestDispatcher_Disconnect_Stops_Deliveries_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, _ := f.join(t, "alice", false)
	connB, sinkB := f.join(t, "bob", false)

	// When bob disconnects, twice
	f.dispatcher.Disconnect(connB.ID)
	f.dispatcher.Disconnect(connB.ID)

	// Then a later broadcast no longer targets him
	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "anyone there?"}))
	req.Len(sinkB.Events(), 1) // only his original snapshot

	// And bob can no longer act on the room
	err := f.dispatcher.Handle(context.Background(), connB.ID,
		chat.SendComment{Activity: f.activityID, Body: "ghost"})
	req.ErrorIs(err, errors.ErrConnectionNotFound)
}

func TestDispatcher_Snapshot_Reflects_Current_Store(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	connA, _ := f.join(t, "alice", false)

	// Given two persisted comments
	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "first"}))
	req.NoError(f.dispatcher.Handle(context.Background(), connA.ID,
		chat.SendComment{Activity: f.activityID, Body: "second"}))

	// When a new connection joins
	_, sinkB := f.join(t, "bob", false)

	// Then its snapshot carries both comments in chronological order
	snapshot := sinkB.Events()[0].(event.CommentsLoaded)
	req.Len(snapshot.Comments, 2)
	req.Equal("first", snapshot.Comments[0].Body)
	req.Equal("second", snapshot.Comments[1].Body)
}

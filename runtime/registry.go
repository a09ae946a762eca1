// Package runtime coordinates live connections, room membership, and event
// fan-out. It contains no business rules beyond the comment authorization
// checks the dispatcher enforces.
package runtime

import (
	"fmt"
	"sync"

	"activity-hub/contract"
	"activity-hub/domain"
	"activity-hub/errors"
)

type Set map[domain.ConnectionID]struct{}

type session struct {
	conn domain.Connection
	sink contract.EventSink
}

// Registry tracks which connection belongs to which activity room. Both maps
// live behind one mutex so membership updates and the member-list read used
// for broadcast are mutually exclusive: a broadcast can never target a
// connection mid-teardown or miss a freshly joined one.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnectionID]session
	roomMembers map[domain.ActivityID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnectionID]session),
		roomMembers: make(map[domain.ActivityID]Set),
	}
}

// Register records a connection and adds it to its room's member set. The
// room entry is initialized on first join. Transport-assigned ids are unique,
// so a duplicate id is a programming error and is rejected.
func (r *Registry) Register(conn domain.Connection, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn.ID]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateConnection, conn.ID)
	}
	r.sessions[conn.ID] = session{conn: conn, sink: sink}

	if _, ok := r.roomMembers[conn.ActivityID]; !ok {
		r.roomMembers[conn.ActivityID] = make(Set)
	}
	r.roomMembers[conn.ActivityID][conn.ID] = struct{}{}
	return nil
}

// Unregister removes a connection from the registry and from its room.
// It is idempotent: unregistering an absent connection is a no-op, so a
// transport-level disconnect racing a server shutdown is safe. Empty member
// sets are removed to keep the room map from growing over time.
func (r *Registry) Unregister(connectionID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	delete(r.sessions, connectionID)

	if members, ok := r.roomMembers[sess.conn.ActivityID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.roomMembers, sess.conn.ActivityID)
		}
	}
}

// Lookup resolves a connection id to the room and identity recorded at
// connect time.
func (r *Registry) Lookup(connectionID domain.ConnectionID) (domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connectionID]
	if !ok {
		return domain.Connection{}, fmt.Errorf("%w: %s", errors.ErrConnectionNotFound, connectionID)
	}
	return sess.conn, nil
}

// SinksForActivity retrieves all active outbound channels for one room. Used
// only by the dispatcher for fan-out. Returns nil for an unknown or empty
// room, which makes broadcasting to such a room a harmless no-op.
func (r *Registry) SinksForActivity(activityID domain.ActivityID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[activityID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connectionID := range members {
		if sess, exists := r.sessions[connectionID]; exists {
			activeSinks = append(activeSinks, sess.sink)
		}
	}
	return activeSinks
}

// Counts reports live connection and room totals for the health endpoint.
func (r *Registry) Counts() (connections, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.roomMembers)
}

package domain

// ConnectionID is the opaque identifier issued by the transport layer when a
// websocket is accepted.
type ConnectionID string

// Connection ties a live transport connection to the activity room it joined
// and to the identity resolved from its credential. Connections live only in
// the dispatcher process; they are never persisted and do not survive a
// restart (clients reconnect and reload history).
type Connection struct {
	ID         ConnectionID
	ActivityID ActivityID
	UserID     string
	Username   string
	Admin      bool
}
